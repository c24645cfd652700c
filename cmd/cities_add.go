package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/confirm"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/enrich"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/refdata"
)

var citiesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add the cities of a reference CSV that the catalog lacks",
	Long: "Finds the postal or INSEE codes of a CSV that the catalog lacks, looks each one up in the geographic API " +
		"and, after confirmation, creates the new cities. Existing cities missing a postal code are reported, not updated.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		by, _ := cmd.Flags().GetString("by")
		yes, _ := cmd.Flags().GetBool("yes")

		var (
			mode   enrich.Mode
			layout refdata.Layout
		)
		switch by {
		case "postal":
			mode, layout = enrich.ByPostalCode, refdata.PostalLayout
		case "insee":
			mode, layout = enrich.ByINSEE, refdata.INSEELayout
		default:
			return eris.Errorf("cities add: --by must be postal or insee, got %q", by)
		}

		codes := refdata.KeySet{}
		if _, err := refdata.IngestFile(ctx, file, layout, codes); err != nil {
			return eris.Wrap(err, "cities add")
		}

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cities, err := store.ListCities(ctx)
		if err != nil {
			return eris.Wrap(err, "cities add")
		}
		missing := refdata.Missing(codes.Keys(), catalogKeys(cities, mode))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Codes in file: %d\nMissing from catalog: %d\n", len(codes), len(missing))
		if len(missing) == 0 {
			return nil
		}

		proxies, err := optionalProxyPool()
		if err != nil {
			return err
		}
		m := metrics.New()
		defer flushMetrics(m, "add-cities")

		enricher := enrich.New(geoClients(proxies)[0], cities,
			enrich.WithMode(mode),
			enrich.WithLimiter(geoLimiter()),
		)
		rep := enricher.EnrichAll(ctx, missing, func(done, total int) {
			fmt.Fprintf(out, "\rLooked up %d/%d codes...", done, total)
		})
		fmt.Fprintln(out)
		enrich.RenderSummary(out, rep)

		if len(rep.New) == 0 {
			return nil
		}
		var c confirm.Confirmer = confirm.NewTerminal(os.Stdin, out, "yes", "y")
		if yes {
			c = confirm.AutoApprove
		}
		if !c.Confirm(ctx, fmt.Sprintf("Add %d new cities?", len(rep.New))) {
			fmt.Fprintln(out, "Aborted, nothing written.")
			return nil
		}

		res := enricher.Create(ctx, store, rep, m)
		fmt.Fprintf(out, "Created %d cities, %d failed.\n", res.Created, res.Failed)
		zap.L().Info("cities added", zap.Int("created", res.Created), zap.Int("failed", res.Failed))
		return nil
	},
}

// catalogKeys returns the keys the CSV is compared against.
func catalogKeys(cities []model.City, mode enrich.Mode) []string {
	var keys []string
	for _, c := range cities {
		if mode == enrich.ByINSEE {
			keys = append(keys, c.INSEECode)
			continue
		}
		keys = append(keys, c.PostalCodes...)
	}
	return keys
}

func init() {
	citiesAddCmd.Flags().String("file", "", "path to the reference CSV")
	citiesAddCmd.Flags().String("by", "postal", "key to compare on: postal or insee")
	citiesAddCmd.Flags().Bool("yes", false, "create the cities without asking")
	_ = citiesAddCmd.MarkFlagRequired("file")
	citiesCmd.AddCommand(citiesAddCmd)
}
