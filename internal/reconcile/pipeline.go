package reconcile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/batch"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/confirm"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/progress"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

const job = "verify"

// State is a step of a verification run.
type State int

const (
	StateInit State = iota
	StateLoadingCatalog
	StateLoadingProgress
	StateFetching
	StateReporting
	StateAwaitingConfirmation
	StateApplying
	StateCancelled
	StateDone
)

var stateNames = [...]string{
	StateInit:                 "INIT",
	StateLoadingCatalog:       "LOADING_CATALOG",
	StateLoadingProgress:      "LOADING_PROGRESS",
	StateFetching:             "FETCHING",
	StateReporting:            "REPORTING",
	StateAwaitingConfirmation: "AWAITING_CONFIRMATION",
	StateApplying:             "APPLYING",
	StateCancelled:            "CANCELLED",
	StateDone:                 "DONE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Catalog is the part of the city store a verification run needs.
type Catalog interface {
	ListCities(ctx context.Context) ([]model.City, error)
	UpdateCity(ctx context.Context, id int64, u model.CityUpdate) error
}

// ProgressStore persists a run between interruptions.
type ProgressStore interface {
	Load(total int, currentKeys []string) *progress.Progress
	Save(p *progress.Progress) error
}

// FetchFunc looks a commune up by INSEE code through a proxy lane.
type FetchFunc func(ctx context.Context, code string, lane int) fetcher.Result[*geoapi.Commune]

// Config tunes a Pipeline.
type Config struct {
	BatchSize int
	Lanes     int
	MinDelay  time.Duration
	MaxDelay  time.Duration
	// RetryFailures requeues the failures of a previous run.
	RetryFailures bool
	// Report receives the summary printed before confirmation.
	Report io.Writer
	Metrics *metrics.Metrics
	// Sleep replaces the inter-batch pause, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result summarizes a run.
type Result struct {
	RunID       string
	Total       int
	Resumed     int // processed before this run started
	Fetched     int // processed during this run
	Candidates  int
	Failures    int
	Applied     int
	ApplyFailed int
	Cancelled   bool
}

// Pipeline verifies every catalog city against the provider.
type Pipeline struct {
	catalog Catalog
	store   ProgressStore
	fetch   FetchFunc
	confirm confirm.Confirmer
	cfg     Config

	state State

	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to State)
	// OnBatch, if set, is called after each batch is checkpointed.
	OnBatch func(index, total int, p *progress.Progress)
}

// New creates a Pipeline.
func New(catalog Catalog, store ProgressStore, fetch FetchFunc, c confirm.Confirmer, cfg Config) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 20
	}
	if cfg.Lanes < 1 {
		cfg.Lanes = 1
	}
	if cfg.Report == nil {
		cfg.Report = io.Discard
	}
	if c == nil {
		c = confirm.AutoDeny
	}
	return &Pipeline{catalog: catalog, store: store, fetch: fetch, confirm: c, cfg: cfg}
}

// State returns the current state.
func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) transition(to State) {
	from := p.state
	p.state = to
	zap.L().Debug("reconcile: state", zap.Stringer("from", from), zap.Stringer("to", to))
	if p.OnTransition != nil {
		p.OnTransition(from, to)
	}
}

// Run executes the whole verification. Only a catalog read failure or a
// cancelled context end it with an error; per-city problems are recorded as
// failures and every batch is checkpointed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "reconcile"))

	p.transition(StateLoadingCatalog)
	cities, err := p.catalog.ListCities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list cities")
	}
	keys := make([]string, len(cities))
	byCode := make(map[string]model.City, len(cities))
	for i, c := range cities {
		keys[i] = c.INSEECode
		byCode[c.INSEECode] = c
	}
	log.Info("reconcile: catalog loaded", zap.Int("cities", len(cities)))

	p.transition(StateLoadingProgress)
	prog := p.store.Load(len(cities), keys)
	if p.cfg.RetryFailures {
		if n := prog.RequeueFailures(); n > 0 {
			log.Info("reconcile: requeued failures", zap.Int("count", n))
		}
	}
	res := &Result{RunID: prog.RunID, Total: len(cities), Resumed: prog.ProcessedCount()}

	pending := prog.Pending(keys)
	work := make([]model.City, len(pending))
	for i, code := range pending {
		work[i] = byCode[code]
	}
	log.Info("reconcile: fetching",
		zap.String("run_id", prog.RunID),
		zap.Int("pending", len(work)),
		zap.Int("already_processed", res.Resumed),
	)

	p.transition(StateFetching)
	opts := batch.Options{
		Size:     p.cfg.BatchSize,
		Lanes:    p.cfg.Lanes,
		MinDelay: p.cfg.MinDelay,
		MaxDelay: p.cfg.MaxDelay,
		Sleep:    p.cfg.Sleep,
	}
	lookup := func(ctx context.Context, c model.City, lane int) fetcher.Result[*geoapi.Commune] {
		return p.fetch(ctx, c.INSEECode, lane)
	}
	for b, err := range batch.Run(ctx, work, opts, lookup) {
		if err != nil {
			return res, err
		}
		for i, city := range b.Items {
			record(prog, city, b.Results[i])
		}
		res.Fetched += b.Size()
		if err := p.store.Save(prog); err != nil {
			log.Error("reconcile: checkpoint failed", zap.Error(err))
		}
		p.cfg.Metrics.ObserveBatch(job)
		log.Info("reconcile: batch done",
			zap.Int("batch", b.Index+1),
			zap.Int("total", b.Total),
			zap.Int("processed", prog.ProcessedCount()),
		)
		if p.OnBatch != nil {
			p.OnBatch(b.Index, b.Total, prog)
		}
	}

	p.transition(StateReporting)
	candidates := prog.Candidates()
	res.Candidates = len(candidates)
	res.Failures = len(prog.Failures())
	RenderSummary(p.cfg.Report, prog)

	if len(candidates) == 0 {
		p.transition(StateDone)
		return res, nil
	}

	p.transition(StateAwaitingConfirmation)
	prompt := fmt.Sprintf("Apply %d city update(s)?", len(candidates))
	if !p.confirm.Confirm(ctx, prompt) {
		p.transition(StateCancelled)
		res.Cancelled = true
		log.Info("reconcile: updates cancelled")
		p.transition(StateDone)
		return res, nil
	}

	p.transition(StateApplying)
	for _, c := range candidates {
		err := p.catalog.UpdateCity(ctx, c.City.ID, c.Update)
		p.cfg.Metrics.ObserveWrite(job, err)
		if err != nil {
			res.ApplyFailed++
			log.Error("reconcile: update failed",
				zap.String("insee", c.City.INSEECode),
				zap.Int64("id", c.City.ID),
				zap.Error(err),
			)
			continue
		}
		res.Applied++
		prog.ResolveCandidate(c.City.INSEECode)
	}
	if err := p.store.Save(prog); err != nil {
		log.Error("reconcile: checkpoint failed", zap.Error(err))
	}
	log.Info("reconcile: updates applied", zap.Int("applied", res.Applied), zap.Int("failed", res.ApplyFailed))

	p.transition(StateDone)
	return res, nil
}

// record stores the outcome of one lookup.
func record(prog *progress.Progress, city model.City, r fetcher.Result[*geoapi.Commune]) {
	switch {
	case !r.OK():
		prog.RecordFailure(model.Failure{City: city, Reason: r.Err.Error()})
	case r.Value == nil:
		prog.RecordFailure(model.Failure{City: city, Reason: "no data returned"})
	default:
		diffs, update := Diff(city, r.Value)
		if len(diffs) == 0 {
			prog.RecordMatch(city.INSEECode)
			return
		}
		prog.RecordCandidate(model.Candidate{City: city, Differences: diffs, Update: update})
	}
}
