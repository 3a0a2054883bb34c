package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/copper-cli/internal/monitoring"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one staleness check and send alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Collector, env.Alerter, cfg.Monitoring)
		alerts := checker.Check(cmd.Context())

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			_, _ = out.Write([]byte("all regions up to date\n"))
			return nil
		}
		return writeJSONTo(out, alerts)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
