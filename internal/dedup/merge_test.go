package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func TestMergeRequiresTwoRecords(t *testing.T) {
	r := NewConflictResolver()
	_, err := r.Merge(&types.DuplicateGroup{
		Records:    []*types.CanonicalEvent{testEvent("a", time.Now())},
		Similarity: 1.0,
		Stage:      stageExact,
	})
	assert.Error(t, err)
}

func TestMergeKeepsOldestTimestamp(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts.Add(10*time.Second))
	b := testEvent("b", ts)

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.95, Stage: stageTimeBucketed})
	require.NoError(t, err)
	assert.True(t, res.MergedRecord.Timestamp.Equal(ts))
	assert.Equal(t, "b", res.DataLineage["ts"])
	assert.Equal(t, 1, res.ConflictsResolved)
}

func TestMergeKeepsLongestDuration(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Duration = 180
	b := testEvent("b", ts)
	b.Duration = 240

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 1.0, Stage: stageExact})
	require.NoError(t, err)
	assert.Equal(t, 240, res.MergedRecord.Duration)
	assert.Equal(t, "b", res.DataLineage["duration"])

	// Same outcome with the group order reversed.
	res2, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{b, a}, Similarity: 1.0, Stage: stageExact})
	require.NoError(t, err)
	assert.Equal(t, 240, res2.MergedRecord.Duration)
}

func TestMergeKeepsMostCompleteNumber(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Number = "5551234567"
	b := testEvent("b", ts)
	b.Number = "+15551234567"

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.9, Stage: stageFuzzy})
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", res.MergedRecord.Number)
	assert.Equal(t, "b", res.DataLineage["number"])
}

func TestMergeWeightedTypePreference(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Type = types.EventSMS
	b := testEvent("b", ts)
	b.Type = types.EventMMS

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.85, Stage: stageFuzzy})
	require.NoError(t, err)
	assert.Equal(t, types.EventMMS, res.MergedRecord.Type)
}

func TestMergeDirectionPreference(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Direction = types.DirectionMissed
	b := testEvent("b", ts)
	b.Direction = types.DirectionInbound

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.85, Stage: stageFuzzy})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionInbound, res.MergedRecord.Direction)
}

func TestMergeKeepsLongestContent(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Content = "pkg shipped"
	b := testEvent("b", ts)
	b.Content = "Your package has shipped and arrives Tuesday"

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.9, Stage: stageSemantic})
	require.NoError(t, err)
	assert.Equal(t, b.Content, res.MergedRecord.Content)
}

func TestMergeNoConflicts(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	res, err := r.Merge(&types.DuplicateGroup{
		Records:    []*types.CanonicalEvent{testEvent("a", ts), testEvent("b", ts)},
		Similarity: 1.0,
		Stage:      stageExact,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ConflictsResolved)
	assert.Equal(t, 1.0, res.QualityScore)
}

func TestMergeQualityScore(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	full := func(id string, when time.Time) *types.CanonicalEvent {
		ev := testEvent(id, when)
		ev.Content = "Your package has shipped"
		ev.Carrier = "verizon"
		return ev
	}

	tests := []struct {
		name          string
		group         func() *types.DuplicateGroup
		wantConflicts int
		wantQuality   float64
	}{
		{
			// Resolved conflicts and a fully populated merged record earn
			// bonuses, so the score lands above the detection similarity.
			name: "light conflicts, complete record",
			group: func() *types.DuplicateGroup {
				a := full("a", ts)
				a.Duration = 180
				b := full("b", ts.Add(5*time.Second))
				b.Duration = 240
				return &types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.9, Stage: stageTimeBucketed}
			},
			wantConflicts: 2, // ts and duration
			wantQuality:   0.9 + 2*0.02 + 0.05,
		},
		{
			// Conflicts on more than half the fields trip the penalty.
			name: "over-conflicted group",
			group: func() *types.DuplicateGroup {
				a := full("a", ts)
				a.Duration = 180
				b := full("b", ts.Add(5*time.Second))
				b.Duration = 240
				b.Content = "Your package has shipped and arrives Tuesday"
				b.Carrier = "att"
				return &types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.75, Stage: stageFuzzy}
			},
			wantConflicts: 4, // ts, duration, content, carrier
			wantQuality:   0.75 + 4*0.02 - 0.15 + 0.05,
		},
		{
			// A sparse merged record earns only a partial completeness
			// bonus: 4 of 7 fields populated.
			name: "sparse record",
			group: func() *types.DuplicateGroup {
				a := testEvent("a", ts)
				a.Duration = 0
				b := testEvent("b", ts.Add(5*time.Second))
				b.Duration = 0
				return &types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 0.8, Stage: stageTimeBucketed}
			},
			wantConflicts: 1, // ts only
			wantQuality:   0.8 + 1*0.02 + 0.05*4.0/7.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Merge(tt.group())
			require.NoError(t, err)
			assert.Equal(t, tt.wantConflicts, res.ConflictsResolved)
			assert.InDelta(t, tt.wantQuality, res.QualityScore, 0.001)
			assert.GreaterOrEqual(t, res.QualityScore, 0.0)
			assert.LessOrEqual(t, res.QualityScore, 1.0)
		})
	}
}

func TestMergeDoesNotMutateSources(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Duration = 180
	b := testEvent("b", ts)
	b.Duration = 240

	_, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 1.0, Stage: stageExact})
	require.NoError(t, err)
	assert.Equal(t, 180, a.Duration)
	assert.Equal(t, 240, b.Duration)
}

func TestMergePreservesProvenance(t *testing.T) {
	r := NewConflictResolver()
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	a.Metadata = map[string]string{"ts": "format=us"}
	b := testEvent("b", ts)
	b.Metadata = map[string]string{"ts": "format=iso", "number": "fallback=digit_count"}

	res, err := r.Merge(&types.DuplicateGroup{Records: []*types.CanonicalEvent{a, b}, Similarity: 1.0, Stage: stageExact})
	require.NoError(t, err)
	// Surviving record's keys win; missing keys fill in from later members.
	assert.Equal(t, "format=us", res.MergedRecord.Metadata["ts"])
	assert.Equal(t, "fallback=digit_count", res.MergedRecord.Metadata["number"])
}
