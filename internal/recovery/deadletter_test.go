package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func dlError(itemID string, category types.ErrorCategory, severity types.Severity) *types.ValidationError {
	return &types.ValidationError{
		ErrorID:          "err-" + itemID,
		Category:         category,
		Severity:         severity,
		Message:          "parked",
		Context:          types.ErrorContext{JobID: "job-1", ItemID: itemID, RetryCount: 2},
		RecoveryStrategy: types.RecoveryDeadLetter,
		MaxRetries:       1,
	}
}

func TestEnqueueAndList(t *testing.T) {
	store := NewMemoryDeadLetterStore()
	q := NewDeadLetterQueue(store, nil)
	ctx := context.Background()

	err := q.Enqueue(ctx, "job-1", map[string]any{"number": "5551234567"}, dlError("row-1", types.CategoryUnknown, types.SeverityMedium))
	require.NoError(t, err)

	entries, err := store.List(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "row-1", entries[0].ItemID)
	assert.Equal(t, 2, entries[0].RetryCount)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestRedrainRemovesProcessed(t *testing.T) {
	store := NewMemoryDeadLetterStore()
	q := NewDeadLetterQueue(store, nil)
	ctx := context.Background()

	for _, id := range []string{"row-1", "row-2", "row-3"} {
		require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError(id, types.CategoryUnknown, types.SeverityMedium)))
	}

	drained, failed, err := q.Redrain(ctx, "job-1", 10, func(ctx context.Context, e *DeadLetter) error {
		if e.ItemID == "row-2" {
			return errors.New("still broken")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, drained)
	assert.Equal(t, 1, failed)

	remaining, err := store.List(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "row-2", remaining[0].ItemID, "failed items stay parked")
}

func TestRedrainIsBounded(t *testing.T) {
	store := NewMemoryDeadLetterStore()
	q := NewDeadLetterQueue(store, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError("row", types.CategoryUnknown, types.SeverityMedium)))
	}

	processed := 0
	drained, _, err := q.Redrain(ctx, "job-1", 2, func(ctx context.Context, e *DeadLetter) error {
		processed++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, drained)
	assert.Equal(t, 2, processed)
}

func TestStatsGroupsByDayCategorySeverity(t *testing.T) {
	store := NewMemoryDeadLetterStore()
	q := NewDeadLetterQueue(store, nil)
	ctx := context.Background()

	day1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	q.now = func() time.Time { return day1 }
	require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError("a", types.CategoryDataQuality, types.SeverityLow)))
	require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError("b", types.CategoryDataQuality, types.SeverityLow)))
	require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError("c", types.CategoryNetwork, types.SeverityMedium)))

	q.now = func() time.Time { return day2 }
	require.NoError(t, q.Enqueue(ctx, "job-1", nil, dlError("d", types.CategoryDatabase, types.SeverityHigh)))

	stats, err := q.Stats(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "2024-01-15", stats[0].Day)
	assert.Equal(t, 3, stats[0].Total)
	assert.Equal(t, 2, stats[0].ByCategory[types.CategoryDataQuality])
	assert.Equal(t, 1, stats[0].ByCategory[types.CategoryNetwork])
	assert.Equal(t, 2, stats[0].BySeverity[types.SeverityLow])

	assert.Equal(t, "2024-01-16", stats[1].Day)
	assert.Equal(t, 1, stats[1].Total)
}
