package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/extract"
	"github.com/sells-group/copper-cli/internal/importer"
	"github.com/sells-group/copper-cli/internal/model"
)

var (
	importFile     string
	importMaterial string
	importSheet    string
	importDryRun   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import prices from a legacy CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		material, err := findMaterial(cfg.Materials, importMaterial)
		if err != nil {
			return err
		}

		res, err := importer.ReadFile(importFile, importer.Options{
			Material:  material,
			Extractor: extract.New(extract.Bounds{Min: cfg.Ingest.MinPrice, Max: cfg.Ingest.MaxPrice}, extract.DefaultUnit),
			Location:  env.Location,
			SheetName: importSheet,
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}
		for _, rej := range res.Rejected {
			zap.L().Warn("import: row rejected", zap.Int("row", rej.Row), zap.String("reason", rej.Reason))
		}

		if importDryRun {
			zap.L().Info("import dry run",
				zap.String("file", importFile),
				zap.Int("parsed", len(res.Records)),
				zap.Int("rejected", len(res.Rejected)),
			)
			return nil
		}

		started, err := env.Orchestrator.Import(ctx, res.Records)
		if err != nil {
			return eris.Wrap(err, "import")
		}
		if !started {
			return eris.New("import: another cycle is running")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("parsed", len(res.Records)),
			zap.Int("rejected", len(res.Rejected)),
			zap.Int("added", env.Orchestrator.Snapshot().LastAdded),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importMaterial, "material", "", "material ID the rows belong to (default first active)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and validate without saving")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

// findMaterial returns the material with the given ID, or the first active
// one when id is empty.
func findMaterial(materials []model.MaterialConfig, id string) (model.MaterialConfig, error) {
	if id == "" {
		active := model.ActiveMaterials(materials)
		if len(active) == 0 {
			return model.MaterialConfig{}, eris.New("no active material configured")
		}
		return active[0], nil
	}
	for _, m := range materials {
		if m.ID == id {
			return m, nil
		}
	}
	return model.MaterialConfig{}, eris.Errorf("unknown material %q", id)
}
