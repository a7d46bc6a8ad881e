package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func TestBuildContactSummaries(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []*types.CanonicalEvent{
		{Number: "+15551234567", Timestamp: base.Add(time.Hour), Duration: 60},
		{Number: "+15559876543", Timestamp: base, Duration: 30},
		{Number: "+15551234567", Timestamp: base, Duration: 120},
		{Number: "+15551234567", Timestamp: base.Add(2 * time.Hour), Duration: 0},
	}

	sums := BuildContactSummaries("user-1", events)
	require.Len(t, sums, 2)

	// Ordered by number.
	first := sums[0]
	assert.Equal(t, "+15551234567", first.Number)
	assert.Equal(t, "user-1", first.UserID)
	assert.Equal(t, 3, first.EventCount)
	assert.Equal(t, 180, first.TotalDuration)
	assert.Equal(t, base, first.FirstSeen)
	assert.Equal(t, base.Add(2*time.Hour), first.LastSeen)

	second := sums[1]
	assert.Equal(t, "+15559876543", second.Number)
	assert.Equal(t, 1, second.EventCount)
}

func TestBuildContactSummariesEmpty(t *testing.T) {
	assert.Empty(t, BuildContactSummaries("user-1", nil))
}
