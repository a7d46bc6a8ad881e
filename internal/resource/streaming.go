package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrEndOfInput is returned by a batch producer when no batches remain.
var ErrEndOfInput = errors.New("end of input")

// StreamOptions bounds a streaming run.
type StreamOptions struct {
	MaxConcurrentBatches int           // concurrent batch-processing tasks
	PrefetchDepth        int           // batches buffered ahead of the workers
	RateLimit            rate.Limit    // batches admitted per second, 0 = unlimited
	Monitor              *MemoryMonitor
	Logger               *zap.Logger
}

func (o *StreamOptions) applyDefaults() {
	if o.MaxConcurrentBatches <= 0 {
		o.MaxConcurrentBatches = 4
	}
	if o.PrefetchDepth <= 0 {
		o.PrefetchDepth = 2
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type numbered[In any] struct {
	seq   int
	items []In
}

// StreamBatches pulls batches from next until ErrEndOfInput, prefetching up
// to PrefetchDepth batches ahead, and processes up to MaxConcurrentBatches
// concurrently. Under emergency memory pressure, admission pauses until
// in-flight batches drain and usage falls back below the threshold.
// Results are assembled in batch order. A producer or processing error
// cancels the run and is returned after in-flight work settles.
func StreamBatches[In, Out any](
	ctx context.Context,
	opts StreamOptions,
	next func(context.Context) ([]In, error),
	process func(context.Context, []In) ([]Out, error),
) ([]Out, error) {
	opts.applyDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan numbered[In], opts.PrefetchDepth)
	prefetchErr := make(chan error, 1)

	// Single prefetch task keeps the queue fed; the bounded channel is the
	// back-pressure.
	go func() {
		defer close(queue)
		for seq := 0; ; seq++ {
			batch, err := next(runCtx)
			if errors.Is(err, ErrEndOfInput) {
				prefetchErr <- nil
				return
			}
			if err != nil {
				prefetchErr <- fmt.Errorf("batch producer: %w", err)
				return
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case queue <- numbered[In]{seq: seq, items: batch}:
			case <-runCtx.Done():
				prefetchErr <- runCtx.Err()
				return
			}
		}
	}()

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(opts.RateLimit, 1)
	}

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrentBatches))
	var (
		mu       sync.Mutex
		results  []numbered[Out]
		firstErr error
	)
	var wg sync.WaitGroup

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for batch := range queue {
		if limiter != nil {
			if err := limiter.Wait(runCtx); err != nil {
				fail(err)
				break
			}
		}
		if opts.Monitor != nil && opts.Monitor.Level() == MemoryEmergency {
			opts.Logger.Warn("memory emergency, draining in-flight batches",
				zap.Int("queued_batch", batch.seq))
			if err := opts.Monitor.WaitForHeadroom(runCtx); err != nil {
				fail(err)
				break
			}
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		go func(b numbered[In]) {
			defer wg.Done()
			defer sem.Release(1)
			out, err := process(runCtx, b.items)
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", b.seq, err))
				return
			}
			mu.Lock()
			results = append(results, numbered[Out]{seq: b.seq, items: out})
			mu.Unlock()
		}(batch)
	}
	wg.Wait()

	if err := <-prefetchErr; err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })
	var out []Out
	for _, r := range results {
		out = append(out, r.items...)
	}
	return out, nil
}
