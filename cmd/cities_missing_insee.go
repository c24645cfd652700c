package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/refdata"
)

var citiesMissingINSEECmd = &cobra.Command{
	Use:   "missing-insee",
	Short: "Report INSEE codes of the official commune list absent from the catalog",
	Long:  "Reads the INSEE commune CSV, keeps communes and municipal arrondissements, and writes a sorted report of the codes missing from the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		dir, _ := cmd.Flags().GetString("out-dir")

		rows := refdata.RowIndex{}
		stats, err := refdata.IngestFile(ctx, file, refdata.INSEELayout, rows)
		if err != nil {
			return eris.Wrap(err, "cities missing-insee")
		}

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		known, err := store.INSEECodes(ctx)
		if err != nil {
			return eris.Wrap(err, "cities missing-insee")
		}

		codes := refdata.Missing(rows.Keys(), known)
		missing := make([]refdata.Row, len(codes))
		for i, code := range codes {
			missing[i] = rows[code]
		}

		now := time.Now()
		path, err := refdata.WriteReport(dir, "missing_insee_codes", now, func(w io.Writer) {
			refdata.RenderMissingINSEE(w, now, missing, stats, len(known))
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rows read: %d\nKept: %d\nIgnored types: %s\nWithout code: %d\nDuplicates: %d\n",
			stats.TotalRows, stats.Kept, refdata.FormatIgnoredTypes(stats.IgnoredTypes), stats.MissingKey, stats.Duplicates)
		fmt.Fprintf(out, "INSEE codes in catalog: %d\nMissing: %d\nReport: %s\n", len(known), len(missing), path)
		zap.L().Info("missing insee codes report written", zap.Int("missing", len(missing)), zap.String("path", path))
		return nil
	},
}

func init() {
	citiesMissingINSEECmd.Flags().String("file", "", "path to the INSEE commune CSV")
	citiesMissingINSEECmd.Flags().String("out-dir", ".", "directory the report is written to")
	_ = citiesMissingINSEECmd.MarkFlagRequired("file")
	citiesCmd.AddCommand(citiesMissingINSEECmd)
}
