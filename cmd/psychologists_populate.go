package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/proxy"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/psyetl"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/staging"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/ameli"
)

var psychologistsPopulateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Extract the directory through the proxy pool and load it into the catalog",
	Long: "Repeatedly fetches the directory around the cities not fetched recently, one jittered round per batch of " +
		"cities, stages every record locally, then bulk loads the staging database into the catalog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		loadOnly, _ := cmd.Flags().GetBool("load-only")
		reqs := []config.Requirement{config.RequireDatabase, config.RequireStaging}
		if !loadOnly {
			reqs = append(reqs, config.RequireProxy)
		}
		if err := cfg.Validate(reqs...); err != nil {
			return err
		}

		var proxies *proxy.Pool
		if !loadOnly {
			p, err := openProxyPool()
			if err != nil {
				return err
			}
			proxies = p
		}

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stage, err := staging.Open(ctx, cfg.Staging.Path)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		m := metrics.New()
		defer flushMetrics(m, "psychologists")

		clients := ameliClients(proxies)
		f := fetcher.New[model.City, []ameli.Entry](func(ctx context.Context, c model.City, lane int) ([]ameli.Entry, error) {
			return clients[lane%len(clients)].Search(ctx, c.Center.Lon, c.Center.Lat)
		}, fetcherOptions(proxies, m, cfg.Ameli.TimeoutSecs)...)

		pc := cfg.Psychologists
		etl := psyetl.New(store, stage, f.Fetch, psyetl.Config{
			Parallel:        min(pc.ParallelRequests, len(clients)),
			Lanes:           len(clients),
			RefetchAfter:    time.Duration(pc.RefetchAfterDays) * 24 * time.Hour,
			MinDelay:        time.Duration(pc.MinDelayMs) * time.Millisecond,
			MaxDelay:        time.Duration(pc.MaxDelayMs) * time.Millisecond,
			LoadBatchSize:   pc.LoadBatchSize,
			LoadConcurrency: pc.LoadConcurrency,
			Metrics:         m,
		})

		out := cmd.OutOrStdout()
		if !loadOnly {
			fmt.Fprintf(out, "Extracting with %d parallel requests over %d proxies, staging in %s\n",
				min(pc.ParallelRequests, len(clients)), len(clients), cfg.Staging.Path)
			res, err := etl.Extract(ctx)
			proxies.Stats().Render(out)
			if err != nil {
				return eris.Wrap(err, "psychologists populate")
			}
			fmt.Fprintf(out, "Extraction done: %d rounds, %d cities fetched, %d failed, %d records staged\n",
				res.Rounds, res.Succeeded, res.Failed, res.Staged)
		}

		res, err := etl.Load(ctx, func(done, total int) {
			fmt.Fprintf(out, "\rSaved %d/%d psychologists...", done, total)
		})
		fmt.Fprintln(out)
		if err != nil {
			return eris.Wrap(err, "psychologists populate")
		}
		fmt.Fprintf(out, "Load done: %d loaded, %d skipped, %d/%d chunks failed\n",
			res.Loaded, res.Skipped, res.FailedChunks, res.Chunks)
		zap.L().Info("psychologists loaded",
			zap.Int("staged", res.Total),
			zap.Int("loaded", res.Loaded),
			zap.Int("failed_chunks", res.FailedChunks),
		)
		return nil
	},
}

func init() {
	psychologistsPopulateCmd.Flags().Bool("load-only", false, "skip extraction and only load the staging database")
	psychologistsCmd.AddCommand(psychologistsPopulateCmd)
}
