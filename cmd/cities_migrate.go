package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
)

var citiesMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog schema and migrate legacy postal codes",
	Long:  "Creates the cities and psychologists tables, then folds a legacy single postal_code column into the postal_codes array.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "cities migrate")
		}
		res, err := store.MigratePostalCodes(ctx)
		if err != nil {
			return eris.Wrap(err, "cities migrate")
		}

		out := cmd.OutOrStdout()
		if res.LegacyColumn {
			fmt.Fprintf(out, "Copied %d legacy postal codes; dropped postal_code column.\n", res.Copied)
		} else {
			fmt.Fprintln(out, "No legacy postal_code column.")
		}
		fmt.Fprintf(out, "Cities with postal codes: %d\nCities without postal codes: %d\n", res.WithPostal, res.WithoutPostal)

		zap.L().Info("catalog migrations applied", zap.Bool("legacy_column", res.LegacyColumn))
		return nil
	},
}

func init() {
	citiesCmd.AddCommand(citiesMigrateCmd)
}
