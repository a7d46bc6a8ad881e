package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceProducer yields fixed batches then ErrEndOfInput.
func sliceProducer(batches [][]int) func(context.Context) ([]int, error) {
	i := 0
	return func(ctx context.Context) ([]int, error) {
		if i >= len(batches) {
			return nil, ErrEndOfInput
		}
		b := batches[i]
		i++
		return b, nil
	}
}

func TestStreamBatchesPreservesOrder(t *testing.T) {
	batches := make([][]int, 20)
	for i := range batches {
		batches[i] = []int{i * 2, i*2 + 1}
	}

	out, err := StreamBatches(context.Background(), StreamOptions{MaxConcurrentBatches: 4},
		sliceProducer(batches),
		func(ctx context.Context, in []int) ([]int, error) {
			doubled := make([]int, len(in))
			for i, v := range in {
				doubled[i] = v * 10
			}
			return doubled, nil
		})
	require.NoError(t, err)
	require.Len(t, out, 40)
	for i, v := range out {
		assert.Equal(t, i*10, v, "results must assemble in batch order despite concurrent processing")
	}
}

func TestStreamBatchesBoundsConcurrency(t *testing.T) {
	batches := make([][]int, 12)
	for i := range batches {
		batches[i] = []int{i}
	}

	var inFlight, maxInFlight atomic.Int32
	_, err := StreamBatches(context.Background(), StreamOptions{MaxConcurrentBatches: 3},
		sliceProducer(batches),
		func(ctx context.Context, in []int) ([]int, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			return in, nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(3))
}

func TestStreamBatchesProducerError(t *testing.T) {
	calls := 0
	_, err := StreamBatches(context.Background(), StreamOptions{},
		func(ctx context.Context) ([]int, error) {
			calls++
			if calls == 3 {
				return nil, errors.New("extraction adapter hiccup")
			}
			return []int{calls}, nil
		},
		func(ctx context.Context, in []int) ([]int, error) { return in, nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch producer")
}

func TestStreamBatchesProcessingError(t *testing.T) {
	batches := [][]int{{1}, {2}, {3}}
	_, err := StreamBatches(context.Background(), StreamOptions{MaxConcurrentBatches: 1},
		sliceProducer(batches),
		func(ctx context.Context, in []int) ([]int, error) {
			if in[0] == 2 {
				return nil, fmt.Errorf("boom")
			}
			return in, nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestStreamBatchesSkipsEmptyBatches(t *testing.T) {
	out, err := StreamBatches(context.Background(), StreamOptions{},
		sliceProducer([][]int{{1}, {}, {2}}),
		func(ctx context.Context, in []int) ([]int, error) { return in, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)
}

func TestStreamBatchesCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StreamBatches(ctx, StreamOptions{},
		sliceProducer([][]int{{1}, {2}}),
		func(ctx context.Context, in []int) ([]int, error) { return in, nil })
	assert.Error(t, err)
}

func TestParallelBatchesIsolatesFailures(t *testing.T) {
	batches := [][]int{{1}, {2}, {3}, {4}}
	results := ParallelBatches(context.Background(), 2, nil, batches,
		func(ctx context.Context, in []int) ([]string, error) {
			if in[0] == 3 {
				return nil, errors.New("corrupt batch")
			}
			return []string{fmt.Sprintf("ok-%d", in[0])}, nil
		})

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, []string{"ok-1"}, results[0].Items)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[3].Err, "one batch's failure must not affect the others")
	assert.Equal(t, []string{"ok-4"}, results[3].Items)
}

func TestParallelBatchesEmptyInput(t *testing.T) {
	results := ParallelBatches(context.Background(), 4, nil, nil,
		func(ctx context.Context, in []int) ([]int, error) { return in, nil })
	assert.Empty(t, results)
}

func TestSelectMode(t *testing.T) {
	assert.Equal(t, ModeParallel, SelectMode(100, 50000, ""))
	assert.Equal(t, ModeParallel, SelectMode(50000, 50000, ""))
	assert.Equal(t, ModeStreaming, SelectMode(50001, 50000, ""))
	assert.Equal(t, ModeStreaming, SelectMode(100, 50000, ModeStreaming), "caller override wins")
	assert.Equal(t, ModeParallel, SelectMode(1000000, 50000, ModeParallel))
}
