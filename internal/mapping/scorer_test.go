package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func TestScorerBlendsSignals(t *testing.T) {
	s := NewScorer()

	// Perfect evidence on every signal approaches 1.0.
	high := s.Score(ScoreInput{
		SourceField:           "phone_number",
		TargetField:           types.FieldNumber,
		DataType:              types.DataTypePhone,
		SampleValues:          []string{"(555) 123-4567", "555-987-6543"},
		ModelConfidence:       1.0,
		FromTemplate:          true,
		HistoricalSuccessRate: 1.0,
	})
	assert.InDelta(t, 1.0, high, 0.01)

	// No evidence at all stays low.
	low := s.Score(ScoreInput{
		SourceField:  "zz",
		TargetField:  types.FieldNumber,
		DataType:     types.DataTypePhone,
		SampleValues: []string{"hello", "world"},
	})
	assert.Less(t, low, 0.2)
}

func TestScorerTypeConflictPenalty(t *testing.T) {
	s := NewScorer()

	clean := s.Score(ScoreInput{
		SourceField:  "call_date",
		TargetField:  types.FieldTimestamp,
		DataType:     types.DataTypeDateTime,
		SampleValues: []string{"01/15/2024 14:30:00", "01/16/2024 09:00:00"},
	})
	conflicted := s.Score(ScoreInput{
		SourceField:  "call_date",
		TargetField:  types.FieldTimestamp,
		DataType:     types.DataTypeDateTime,
		SampleValues: []string{"yes", "no", "maybe"},
	})
	assert.Greater(t, clean, conflicted)
}

func TestScorerNamePenalties(t *testing.T) {
	s := NewScorer()

	named := s.Score(ScoreInput{
		SourceField: "duration_seconds",
		TargetField: types.FieldDuration,
		DataType:    types.DataTypeDuration,
	})
	generic := s.Score(ScoreInput{
		SourceField: "field12",
		TargetField: types.FieldDuration,
		DataType:    types.DataTypeDuration,
	})
	assert.Greater(t, named, generic)
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		field  string
		target types.TargetField
		min    float64
	}{
		{"Phone Number", types.FieldNumber, 1.0},
		{"phoneNumber", types.FieldNumber, 1.0},
		{"caller_id", types.FieldNumber, 0.8}, // "caller" tokenizes out exactly
		{"Call Date", types.FieldTimestamp, 1.0},
		{"duraton", types.FieldDuration, 0.7}, // typo still close
	}
	for _, tt := range tests {
		got := nameSimilarity(tt.field, tt.target)
		assert.GreaterOrEqual(t, got, tt.min, "field %q", tt.field)
	}

	unrelated := nameSimilarity("gibberish_xyz", types.FieldDuration)
	assert.Less(t, unrelated, 0.5)
}

func TestPatternMatchRate(t *testing.T) {
	full := patternMatchRate(types.DataTypePhone, []string{"5551234567", "(555) 987-6543"})
	assert.Equal(t, 1.0, full)

	half := patternMatchRate(types.DataTypePhone, []string{"5551234567", "not a phone"})
	assert.Equal(t, 0.5, half)

	noSamples := patternMatchRate(types.DataTypeDateTime, nil)
	assert.Equal(t, 0.5, noSamples)

	strings := patternMatchRate(types.DataTypeString, []string{"anything"})
	assert.Equal(t, 1.0, strings)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"phone", "number"}, tokenize("Phone Number"))
	assert.Equal(t, []string{"phone", "number"}, tokenize("phone_number"))
	assert.Equal(t, []string{"phone", "number"}, tokenize("phoneNumber"))
	assert.Equal(t, []string{"call", "start", "time"}, tokenize("call-start-time"))
	assert.Empty(t, tokenize(""))
}
