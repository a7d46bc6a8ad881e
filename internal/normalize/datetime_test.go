package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTimeUSFormatAssumesUTC(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	got := n.Normalize("01/15/2024 14:30:00")
	require.True(t, got.IsValid, "errors: %v", got.Errors)
	assert.Equal(t, "2024-01-15T14:30:00+00:00", got.ISO8601)
	assert.Equal(t, "us", got.Format)
}

func TestDateTimeFormats(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	tests := []struct {
		name       string
		input      string
		wantISO    string
		wantFormat string
	}{
		{"RFC3339", "2024-01-15T14:30:00Z", "2024-01-15T14:30:00+00:00", "iso"},
		{"RFC3339 offset", "2024-01-15T09:30:00-05:00", "2024-01-15T14:30:00+00:00", "iso"},
		{"ISO space", "2024-01-15 14:30:00", "2024-01-15T14:30:00+00:00", "iso"},
		{"US datetime", "01/15/2024 14:30:00", "2024-01-15T14:30:00+00:00", "us"},
		{"US 12-hour", "01/15/2024 2:30:00 PM", "2024-01-15T14:30:00+00:00", "us"},
		{"EU dotted", "15.01.2024 14:30:00", "2024-01-15T14:30:00+00:00", "eu"},
		{"bare ISO date", "2024-01-15", "2024-01-15T00:00:00+00:00", "date"},
		{"bare US date", "01/15/2024", "2024-01-15T00:00:00+00:00", "date"},
		{"unix seconds", "1705329000", "2024-01-15T14:30:00+00:00", "unix_s"},
		{"unix millis", "1705329000000", "2024-01-15T14:30:00+00:00", "unix_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.input)
			require.True(t, got.IsValid, "errors: %v", got.Errors)
			assert.Equal(t, tt.wantISO, got.ISO8601)
			assert.Equal(t, tt.wantFormat, got.Format)
		})
	}
}

// TestDateTimePriorityOrder pins the documented ambiguity contract: a value
// parseable as both US and EU resolves month-first.
func TestDateTimePriorityOrder(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	got := n.Normalize("03/04/2024 10:00:00")
	require.True(t, got.IsValid)
	assert.Equal(t, "us", got.Format)
	assert.Equal(t, time.March, got.UTC.Month())
	assert.Equal(t, 4, got.UTC.Day())
}

func TestDateTimeZoneAbbreviation(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	got := n.Normalize("01/15/2024 09:30:00 EST")
	require.True(t, got.IsValid, "errors: %v", got.Errors)
	// EST is UTC-5, so 09:30 EST is 14:30 UTC.
	assert.Equal(t, "2024-01-15T14:30:00+00:00", got.ISO8601)
}

func TestDateTimeTimeOnlyAnchorsToEpoch(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	got := n.Normalize("14:30:00")
	require.True(t, got.IsValid)
	assert.Equal(t, "time_only", got.Format)
	assert.Equal(t, 1970, got.UTC.Year())
	assert.NotEmpty(t, got.Errors) // carries the anchoring note
}

func TestDateTimeInvalid(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	for _, input := range []string{"", "not a date", "13/45/2024", "42"} {
		got := n.Normalize(input)
		assert.False(t, got.IsValid, "input %q", input)
		assert.NotEmpty(t, got.Errors)
	}
}

func TestDateTimeUnixMillisPrecision(t *testing.T) {
	n := NewDateTimeNormalizer(DefaultDateTimeConfig())

	got := n.Normalize("2024-01-15T14:30:00Z")
	require.True(t, got.IsValid)
	assert.Equal(t, int64(1705329000000), got.UnixMS)
}
