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

var citiesMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Report postal codes of a reference CSV absent from the catalog",
	Long:  "Reads a postal-code CSV, compares its codes with the catalog and writes a sorted report of the missing ones with their commune names.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		dir, _ := cmd.Flags().GetString("out-dir")

		names := refdata.NameIndex{}
		stats, err := refdata.IngestFile(ctx, file, refdata.PostalLayout, names)
		if err != nil {
			return eris.Wrap(err, "cities missing")
		}

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		known, err := store.PostalCodes(ctx)
		if err != nil {
			return eris.Wrap(err, "cities missing")
		}

		missing := refdata.Missing(names.Keys(), known)
		now := time.Now()
		path, err := refdata.WriteReport(dir, "missing_cities", now, func(w io.Writer) {
			refdata.RenderMissingPostal(w, now, missing, names)
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Postal codes in file: %d\nPostal codes in catalog: %d\nMissing: %d\nReport: %s\n",
			len(names), len(known), len(missing), path)
		zap.L().Info("missing postal codes report written",
			zap.Int("rows", stats.TotalRows),
			zap.Int("missing", len(missing)),
			zap.String("path", path),
		)
		return nil
	},
}

func init() {
	citiesMissingCmd.Flags().String("file", "", "path to the postal code CSV")
	citiesMissingCmd.Flags().String("out-dir", ".", "directory the report is written to")
	_ = citiesMissingCmd.MarkFlagRequired("file")
	citiesCmd.AddCommand(citiesMissingCmd)
}
