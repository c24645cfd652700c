package fetcher

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Result is the outcome of one lookup. Failures are data: exactly one of
// Value and Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the lookup succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// LookupFunc performs one upstream request for key through lane.
type LookupFunc[K, T any] func(ctx context.Context, key K, lane int) (T, error)

// Observer is told about every finished lookup.
type Observer func(lane int, err error)

// Option configures a Fetcher.
type Option func(*settings)

type settings struct {
	timeout  time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	limiter  *rate.Limiter
	observe  Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// WithTimeout bounds each lookup. Default: 25s.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithJitter waits a uniformly random duration in [min, max] before each lookup.
func WithJitter(min, max time.Duration) Option {
	return func(s *settings) { s.minDelay, s.maxDelay = min, max }
}

// WithLimiter shares a rate limiter between lookups.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *settings) { s.limiter = l }
}

// WithObserver registers a callback run after each lookup.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observe = o }
}

// Fetcher performs single keyed lookups and never returns an error: every
// failure, including a timeout, comes back inside the Result.
type Fetcher[K, T any] struct {
	lookup LookupFunc[K, T]
	settings
}

// New creates a Fetcher around lookup.
func New[K, T any](lookup LookupFunc[K, T], opts ...Option) *Fetcher[K, T] {
	s := settings{timeout: 25 * time.Second, sleep: Sleep}
	for _, opt := range opts {
		opt(&s)
	}
	return &Fetcher[K, T]{lookup: lookup, settings: s}
}

// Fetch looks key up through lane.
func (f *Fetcher[K, T]) Fetch(ctx context.Context, key K, lane int) Result[T] {
	res := f.fetch(ctx, key, lane)
	if f.observe != nil {
		f.observe(lane, res.Err)
	}
	return res
}

func (f *Fetcher[K, T]) fetch(ctx context.Context, key K, lane int) Result[T] {
	if d := Jitter(f.minDelay, f.maxDelay); d > 0 {
		if err := f.sleep(ctx, d); err != nil {
			return Result[T]{Err: err}
		}
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Result[T]{Err: eris.Wrap(err, "fetcher: rate limit")}
		}
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	v, err := f.lookup(ctx, key, lane)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = eris.Wrapf(err, "fetcher: timed out after %s", f.timeout)
		}
		return Result[T]{Err: err}
	}
	return Result[T]{Value: v}
}

// Jitter returns a uniformly random duration in [min, max]. It returns min
// when max <= min.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
