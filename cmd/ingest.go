package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch today's price for every active material",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.Orchestrator.Trigger(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		if !started {
			return eris.New("ingest: another cycle is running")
		}

		snap := env.Orchestrator.Snapshot()
		zap.L().Info("ingest complete",
			zap.Int("added", snap.LastAdded),
			zap.Int("records", len(snap.History)),
		)
		return nil
	},
}

var backfillMaterial string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch a year of weekly historical prices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.Orchestrator.Backfill(cmd.Context(), backfillMaterial)
		if err != nil {
			return eris.Wrap(err, "backfill")
		}
		if !started {
			return eris.New("backfill: another cycle is running")
		}

		snap := env.Orchestrator.Snapshot()
		zap.L().Info("backfill complete",
			zap.String("material", backfillMaterial),
			zap.Int("added", snap.LastAdded),
			zap.Int("records", len(snap.History)),
		)
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillMaterial, "material", "", "material ID to backfill (default all active)")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(backfillCmd)
}
