package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/refdata"
)

var citiesPopulateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Upsert cities from the bulk commune dataset",
	Long:  "Streams the data array of a bulk commune JSON file and upserts every entry with a code and coordinates, keyed by INSEE code.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		skipExisting, _ := cmd.Flags().GetBool("skip-existing")

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		m := metrics.New()
		defer flushMetrics(m, "populate")

		write := store.UpsertCities
		if skipExisting {
			write = store.InsertCitiesSkipDuplicates
		}
		out := cmd.OutOrStdout()
		stats, err := refdata.PopulateFile(ctx, file, batchSize,
			func(ctx context.Context, cities []model.City) (int64, error) {
				n, err := write(ctx, cities)
				m.ObserveWrite("populate", err)
				return n, err
			},
			func(read int) { fmt.Fprintf(out, "\rProcessed %d entries...", read) },
		)
		fmt.Fprintln(out)
		if err != nil {
			return eris.Wrap(err, "cities populate")
		}

		fmt.Fprintf(out, "City population complete. Read: %d, written: %d, skipped: %d, failed: %d\n",
			stats.Read, stats.Written, stats.Skipped, stats.Failed)
		zap.L().Info("cities populated",
			zap.Int("read", stats.Read),
			zap.Int64("written", stats.Written),
			zap.Int("failed", stats.Failed),
		)
		return nil
	},
}

func init() {
	citiesPopulateCmd.Flags().String("file", "", "path to the bulk commune JSON file")
	citiesPopulateCmd.Flags().Int("batch-size", 500, "cities per upsert transaction")
	citiesPopulateCmd.Flags().Bool("skip-existing", false, "leave cities already in the catalog untouched")
	_ = citiesPopulateCmd.MarkFlagRequired("file")
	citiesCmd.AddCommand(citiesPopulateCmd)
}
