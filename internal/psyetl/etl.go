package psyetl

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/batch"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/staging"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/ameli"
)

const job = "psychologists"

// Catalog is the primary store as seen by the ETL.
type Catalog interface {
	CitiesDueForPsychologists(ctx context.Context, before time.Time, limit int, exclude []int64) ([]model.City, error)
	MarkPsychologistsFetched(ctx context.Context, ids []int64, at time.Time) error
	UpsertPsychologists(ctx context.Context, psys []model.Psychologist) (int64, error)
}

// Stager is the local buffer between extraction and load.
type Stager interface {
	UpsertMany(ctx context.Context, entries []staging.Entry, cityID int64) (int, error)
	Scan(ctx context.Context, fn func(staging.Record) error) error
	Count(ctx context.Context) (int, error)
}

// SearchFunc lists the directory entries around a city through lane.
type SearchFunc func(ctx context.Context, city model.City, lane int) fetcher.Result[[]ameli.Entry]

// Config tunes an ETL.
type Config struct {
	// Parallel is the number of cities fetched per round.
	Parallel int
	// Lanes is the number of proxy lanes requests are spread over.
	Lanes int
	// RefetchAfter is the age after which a city is fetched again.
	RefetchAfter time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration

	LoadBatchSize   int
	LoadConcurrency int

	Metrics *metrics.Metrics
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
}

// ETL moves directory records into the catalog.
type ETL struct {
	catalog Catalog
	stage   Stager
	search  SearchFunc
	cfg     Config
	log     *zap.Logger
}

// New creates an ETL.
func New(catalog Catalog, stage Stager, search SearchFunc, cfg Config) *ETL {
	cfg.Parallel = max(cfg.Parallel, 1)
	cfg.Lanes = max(cfg.Lanes, 1)
	if cfg.LoadBatchSize < 1 {
		cfg.LoadBatchSize = 250
	}
	if cfg.LoadConcurrency < 1 {
		cfg.LoadConcurrency = 10
	}
	if cfg.RefetchAfter <= 0 {
		cfg.RefetchAfter = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ETL{
		catalog: catalog,
		stage:   stage,
		search:  search,
		cfg:     cfg,
		log:     zap.L().With(zap.String("component", "psyetl")),
	}
}

// ExtractResult summarizes an extraction.
type ExtractResult struct {
	Rounds    int
	Succeeded int
	Failed    int
	Staged    int
}

// Extract fetches every due city, round after round, until none is left.
// A city whose fetch or staging fails is not stamped and is skipped for the
// rest of the run.
func (e *ETL) Extract(ctx context.Context) (ExtractResult, error) {
	var (
		res     ExtractResult
		exclude []int64
	)
	for {
		before := e.cfg.Now().Add(-e.cfg.RefetchAfter)
		cities, err := e.catalog.CitiesDueForPsychologists(ctx, before, e.cfg.Parallel, exclude)
		if err != nil {
			return res, eris.Wrap(err, "psyetl: select cities")
		}
		if len(cities) == 0 {
			e.log.Info("psyetl: all cities fetched", zap.Int("rounds", res.Rounds))
			return res, nil
		}
		res.Rounds++

		opts := batch.Options{
			Size:     e.cfg.Parallel,
			Lanes:    e.cfg.Lanes,
			MinDelay: e.cfg.MinDelay,
			MaxDelay: e.cfg.MaxDelay,
			Sleep:    e.cfg.Sleep,
		}
		for b, err := range batch.Run[model.City, fetcher.Result[[]ameli.Entry]](ctx, cities, opts, e.search) {
			if err != nil {
				return res, err
			}
			failed := e.stageBatch(ctx, b, &res)
			exclude = append(exclude, failed...)
		}
	}
}

func (e *ETL) stageBatch(ctx context.Context, b batch.Batch[model.City, fetcher.Result[[]ameli.Entry]], res *ExtractResult) (failed []int64) {
	var (
		done   []int64
		staged int
	)
	for i, r := range b.Results {
		city := b.Items[i]
		if !r.OK() {
			res.Failed++
			failed = append(failed, city.ID)
			e.log.Warn("psyetl: fetch failed",
				zap.String("insee_code", city.INSEECode),
				zap.String("city", city.Name),
				zap.Error(r.Err),
			)
			continue
		}
		n, err := e.stage.UpsertMany(ctx, r.Value, city.ID)
		if err != nil {
			res.Failed++
			failed = append(failed, city.ID)
			e.log.Error("psyetl: stage failed", zap.String("insee_code", city.INSEECode), zap.Error(err))
			continue
		}
		res.Succeeded++
		staged += n
		done = append(done, city.ID)
	}
	res.Staged += staged

	if err := e.catalog.MarkPsychologistsFetched(ctx, done, e.cfg.Now()); err != nil {
		e.log.Error("psyetl: stamp cities failed", zap.Int("cities", len(done)), zap.Error(err))
		failed = append(failed, done...)
	}
	e.cfg.Metrics.ObserveBatch(job)
	e.cfg.Metrics.ObserveStaged(staged)

	e.log.Info("psyetl: batch done",
		zap.Int("cities", b.Size()),
		zap.Int("succeeded", len(done)),
		zap.Int("failed", len(failed)),
		zap.Int("staged", staged),
		zap.Duration("delay", b.Delay),
	)
	return failed
}

// LoadResult summarizes a load.
type LoadResult struct {
	Total        int
	Loaded       int
	Skipped      int
	Chunks       int
	FailedChunks int
}

// Load copies every staged record into the catalog in chunks of
// LoadBatchSize, with at most LoadConcurrency chunks in flight. A failed
// chunk is logged and counted; the others still load. progress, when set,
// is called with the number of records handled so far.
func (e *ETL) Load(ctx context.Context, progress func(done, total int)) (LoadResult, error) {
	var res LoadResult
	total, err := e.stage.Count(ctx)
	if err != nil {
		return res, eris.Wrap(err, "psyetl: count staged")
	}
	res.Total = total
	e.log.Info("psyetl: loading", zap.Int("records", total))

	var (
		mu    sync.Mutex
		done  int
		chunk = make([]model.Psychologist, 0, e.cfg.LoadBatchSize)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.LoadConcurrency)

	submit := func(psys []model.Psychologist) {
		mu.Lock()
		res.Chunks++
		mu.Unlock()
		g.Go(func() error {
			n, err := e.catalog.UpsertPsychologists(gctx, psys)
			e.cfg.Metrics.ObserveLoaded(len(psys), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedChunks++
				e.log.Error("psyetl: chunk failed",
					zap.String("first", psys[0].ExternalID),
					zap.Int("size", len(psys)),
					zap.Error(err),
				)
			} else {
				res.Loaded += int(n)
			}
			done += len(psys)
			if progress != nil {
				progress(done, total)
			}
			return nil
		})
	}

	err = e.stage.Scan(ctx, func(r staging.Record) error {
		rec, err := ameli.Decode(r.Payload)
		if err != nil {
			e.log.Warn("psyetl: skip undecodable record", zap.String("id_out", r.ExternalID), zap.Error(err))
			mu.Lock()
			res.Skipped++
			mu.Unlock()
			return nil
		}
		p := FromRecord(rec, r.CityIDs)
		p.ExternalID = r.ExternalID
		chunk = append(chunk, p)
		if len(chunk) == e.cfg.LoadBatchSize {
			submit(slices.Clone(chunk))
			chunk = chunk[:0]
		}
		return nil
	})
	if err == nil && len(chunk) > 0 {
		submit(slices.Clone(chunk))
	}
	_ = g.Wait()

	if err != nil {
		return res, eris.Wrap(err, "psyetl: scan staged")
	}
	e.log.Info("psyetl: load done",
		zap.Int("loaded", res.Loaded),
		zap.Int("failed_chunks", res.FailedChunks),
	)
	return res, nil
}
