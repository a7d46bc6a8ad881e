package resource

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchResult is one batch's isolated outcome from a parallel run.
type BatchResult[Out any] struct {
	BatchIndex int
	Items      []Out
	Err        error
}

// WorkerCount sizes the parallel pool: CPU count, halved under high memory
// pressure, never below 1. A configured override wins.
func WorkerCount(configured int, mon *MemoryMonitor) int {
	n := configured
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if mon != nil && mon.Level() >= MemoryHigh {
		n /= 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelBatches fans a fixed batch list across a bounded worker pool.
// Batches are isolated: one batch's failure is recorded in its slot and
// does not cancel or corrupt the others. The returned slice has one entry
// per input batch, in input order.
func ParallelBatches[In, Out any](
	ctx context.Context,
	workers int,
	logger *zap.Logger,
	batches [][]In,
	process func(context.Context, []In) ([]Out, error),
) []BatchResult[Out] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]BatchResult[Out], len(batches))
	ran := make([]bool, len(batches))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			out, err := process(gctx, batch)
			mu.Lock()
			results[i] = BatchResult[Out]{BatchIndex: i, Items: out, Err: err}
			ran[i] = true
			mu.Unlock()
			if err != nil {
				logger.Warn("batch failed", zap.Int("batch", i), zap.Error(err))
			}
			// Batch failures are isolated; only context cancellation stops
			// the run.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		// Mark batches that never ran.
		for i := range results {
			if !ran[i] {
				results[i] = BatchResult[Out]{BatchIndex: i, Err: err}
			}
		}
	}
	return results
}
