package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/history"
	"github.com/sells-group/copper-cli/internal/model"
	"github.com/sells-group/copper-cli/internal/store"
)

var (
	exportOut    string
	exportRegion string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the price history to a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		recs := env.Orchestrator.Snapshot().History
		if exportRegion != "" {
			recs = history.Region(recs, exportRegion)
		}

		n, err := exportHistory(ctx, exportOut, cfg.Materials, recs)
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("out", exportOut),
			zap.Int("written", n),
			zap.Int("records", len(recs)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path ending in .csv or .xlsx (required)")
	exportCmd.Flags().StringVar(&exportRegion, "region", "", "only export records for this region")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

// exportHistory appends recs to the file at path, skipping slots the file
// already holds, and returns how many were written.
func exportHistory(ctx context.Context, path string, materials []model.MaterialConfig, recs []model.PriceRecord) (int, error) {
	defaults := model.DefaultMaterials()[0]
	if len(materials) > 0 {
		defaults = materials[0]
	}

	out, err := store.ForPath(path, defaults)
	if err != nil {
		return 0, eris.Wrap(err, "export")
	}
	defer func() { _ = out.Close() }()

	if err := out.Migrate(ctx); err != nil {
		return 0, eris.Wrap(err, "export")
	}
	n, err := store.AppendAll(ctx, out, recs)
	if err != nil {
		return n, eris.Wrap(err, "export")
	}
	return n, nil
}
