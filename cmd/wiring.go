package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/catalog"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/db"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/proxy"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/ameli"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

// openCatalog connects to the primary database.
func openCatalog(ctx context.Context) (*catalog.Store, *pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	return catalog.New(pool), pool, nil
}

// openProxyPool loads the endpoint list. Credentials are checked first.
func openProxyPool() (*proxy.Pool, error) {
	creds := proxy.Credentials{Username: cfg.Proxy.Username, Password: cfg.Proxy.Password}
	if creds.Username == "" || creds.Password == "" {
		return nil, proxy.ErrMissingCredentials
	}
	endpoints, err := proxy.LoadEndpoints(cfg.Proxy.ListPath)
	if err != nil {
		return nil, err
	}
	pool, err := proxy.NewPool(endpoints, creds, cfg.Proxy.Scheme)
	if err != nil {
		return nil, err
	}
	zap.L().Info("proxy pool ready", zap.Int("lanes", pool.Len()))
	return pool, nil
}

// optionalProxyPool returns nil when no credentials are configured.
func optionalProxyPool() (*proxy.Pool, error) {
	if cfg.Proxy.Username == "" || cfg.Proxy.Password == "" {
		zap.L().Info("no proxy credentials, using direct connection")
		return nil, nil
	}
	return openProxyPool()
}

func geoClients(pool *proxy.Pool) []*geoapi.Client {
	return proxy.Clients(pool, func(e proxy.Egress) *geoapi.Client {
		return geoapi.New(
			geoapi.WithBaseURL(cfg.GeoAPI.BaseURL),
			geoapi.WithTimeout(time.Duration(cfg.GeoAPI.TimeoutSecs)*time.Second),
			geoapi.WithProxy(e.URL),
		)
	})
}

func ameliClients(pool *proxy.Pool) []*ameli.Client {
	return proxy.Clients(pool, func(e proxy.Egress) *ameli.Client {
		return ameli.New(
			ameli.WithBaseURL(cfg.Ameli.BaseURL),
			ameli.WithTimeout(time.Duration(cfg.Ameli.TimeoutSecs)*time.Second),
			ameli.WithProxy(e.URL),
		)
	})
}

func geoLimiter() *rate.Limiter {
	if cfg.GeoAPI.RatePerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.GeoAPI.RatePerSec), 1)
}

// laneObserver feeds per-lane outcomes into the pool statistics and the
// fetch counters.
func laneObserver(pool *proxy.Pool, m *metrics.Metrics) fetcher.Observer {
	return func(lane int, err error) {
		label := "direct"
		if pool != nil {
			label = pool.AgentFor(lane).Label()
			pool.Stats().Record(lane, err)
		}
		m.ObserveFetch(label, err)
	}
}

func fetcherOptions(pool *proxy.Pool, m *metrics.Metrics, timeoutSecs int) []fetcher.Option {
	return []fetcher.Option{
		fetcher.WithTimeout(time.Duration(timeoutSecs) * time.Second),
		fetcher.WithObserver(laneObserver(pool, m)),
	}
}

// flushMetrics stamps the job and writes the textfile when configured.
func flushMetrics(m *metrics.Metrics, job string) {
	m.Finish(job)
	if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		zap.L().Warn("write metrics textfile", zap.Error(eris.Wrap(err, "metrics")))
	}
}
