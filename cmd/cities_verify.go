package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/confirm"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/progress"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/reconcile"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

var citiesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare every catalog city with the geographic API",
	Long: "Fetches every city from the geographic API through the proxy pool in jittered batches, records the field " +
		"differences in a resumable progress file and, after confirmation, applies the updates.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase, config.RequireProxy); err != nil {
			return err
		}
		reset, _ := cmd.Flags().GetBool("reset")
		retry, _ := cmd.Flags().GetBool("retry-failures")
		yes, _ := cmd.Flags().GetBool("yes")

		files := progress.NewFileStore(cfg.Verify.ProgressPath, cfg.Verify.ReportPath)
		if reset {
			if err := files.Reset(); err != nil {
				return eris.Wrap(err, "cities verify")
			}
			zap.L().Info("verification progress reset")
		}

		proxies, err := openProxyPool()
		if err != nil {
			return err
		}
		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		m := metrics.New()
		defer flushMetrics(m, "verify")

		clients := geoClients(proxies)
		opts := append(fetcherOptions(proxies, m, cfg.GeoAPI.TimeoutSecs), fetcher.WithLimiter(geoLimiter()))
		f := fetcher.New[string, *geoapi.Commune](func(ctx context.Context, code string, lane int) (*geoapi.Commune, error) {
			return clients[lane%len(clients)].Commune(ctx, code)
		}, opts...)

		out := cmd.OutOrStdout()
		var c confirm.Confirmer = confirm.NewTerminal(os.Stdin, out)
		if yes {
			c = confirm.AutoApprove
		}

		p := reconcile.New(store, files, f.Fetch, c, reconcile.Config{
			BatchSize:     cfg.Verify.BatchSize,
			Lanes:         len(clients),
			MinDelay:      time.Duration(cfg.Verify.MinDelayMs) * time.Millisecond,
			MaxDelay:      time.Duration(cfg.Verify.MaxDelayMs) * time.Millisecond,
			RetryFailures: retry,
			Report:        out,
			Metrics:       m,
		})
		p.OnBatch = func(index, total int, prog *progress.Progress) {
			fmt.Fprintf(out, "Batch %d/%d: %d/%d cities processed\n", index+1, total, prog.ProcessedCount(), prog.Total)
		}

		res, err := p.Run(ctx)
		proxies.Stats().Render(out)
		if err != nil {
			return eris.Wrap(err, "cities verify")
		}

		fmt.Fprintf(out, "Applied %d updates, %d failed. Full report: %s\n", res.Applied, res.ApplyFailed, cfg.Verify.ReportPath)
		zap.L().Info("verification finished",
			zap.String("run_id", res.RunID),
			zap.Int("fetched", res.Fetched),
			zap.Int("candidates", res.Candidates),
			zap.Int("failures", res.Failures),
			zap.Int("applied", res.Applied),
			zap.Bool("cancelled", res.Cancelled),
		)
		return nil
	},
}

func init() {
	citiesVerifyCmd.Flags().Bool("reset", false, "discard saved progress and start over")
	citiesVerifyCmd.Flags().Bool("retry-failures", false, "fetch the cities that failed in a previous run again")
	citiesVerifyCmd.Flags().Bool("yes", false, "apply the updates without asking")
	citiesCmd.AddCommand(citiesVerifyCmd)
}
