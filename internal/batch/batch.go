// Package batch splits work into fixed-size batches, pauses a jittered delay
// before each one and fans the batch out over proxy lanes.
package batch

import (
	"context"
	"iter"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
)

// Options configures a Run.
type Options struct {
	// Size is the maximum number of items per batch. Values below 1 mean 1.
	Size int
	// Lanes is the number of proxy lanes. Within a batch the item at
	// position i is sent through lane i mod Lanes. Values below 1 mean 1.
	Lanes int
	// MinDelay and MaxDelay bound the uniform random pause before each batch.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Sleep replaces fetcher.Sleep, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Batch is one settled batch. Results[i] belongs to Items[i].
type Batch[T, R any] struct {
	Index   int // 0-based
	Total   int
	Offset  int // position of Items[0] in the full input
	Items   []T
	Results []R
	Delay   time.Duration
}

// Size returns the number of items in the batch.
func (b Batch[T, R]) Size() int { return len(b.Items) }

// Count returns the number of batches Run produces for n items.
func Count(n, size int) int {
	if size < 1 {
		size = 1
	}
	return (n + size - 1) / size
}

// Run lazily processes items batch by batch. Each batch is yielded only
// after every item in it has settled. fn must not fail: it reports failures
// inside R. The only error yielded is a context cancellation observed while
// pausing, after which the sequence stops. Stopping the iteration early
// skips the remaining batches.
func Run[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T, lane int) R) iter.Seq2[Batch[T, R], error] {
	size := max(opts.Size, 1)
	lanes := max(opts.Lanes, 1)
	sleep := opts.Sleep
	if sleep == nil {
		sleep = fetcher.Sleep
	}
	total := Count(len(items), size)

	return func(yield func(Batch[T, R], error) bool) {
		for index := 0; index < total; index++ {
			offset := index * size
			chunk := items[offset:min(offset+size, len(items))]

			delay := fetcher.Jitter(opts.MinDelay, opts.MaxDelay)
			zap.L().Debug("batch: waiting",
				zap.Int("batch", index+1),
				zap.Int("total", total),
				zap.Int("size", len(chunk)),
				zap.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				yield(Batch[T, R]{Index: index, Total: total, Offset: offset}, eris.Wrap(err, "batch: cancelled"))
				return
			}

			results := make([]R, len(chunk))
			var g errgroup.Group
			for i, item := range chunk {
				g.Go(func() error {
					results[i] = fn(ctx, item, i%lanes)
					return nil
				})
			}
			_ = g.Wait()

			b := Batch[T, R]{
				Index:   index,
				Total:   total,
				Offset:  offset,
				Items:   chunk,
				Results: results,
				Delay:   delay,
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}
