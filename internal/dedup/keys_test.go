package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func testEvent(id string, ts time.Time) *types.CanonicalEvent {
	return &types.CanonicalEvent{
		ID:        id,
		UserID:    "user-1",
		Number:    "+15551234567",
		Timestamp: ts,
		Type:      types.EventCall,
		Direction: types.DirectionOutbound,
		Duration:  60,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewKeyGenerator(300)
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	for _, strategy := range []types.KeyStrategy{
		types.StrategyStandard,
		types.StrategyTimeBucketed,
		types.StrategyFuzzy,
		types.StrategyContentBased,
	} {
		a, err := g.Generate(testEvent("a", ts), strategy)
		require.NoError(t, err)
		b, err := g.Generate(testEvent("b", ts), strategy)
		require.NoError(t, err)
		assert.Equal(t, a.Full, b.Full, "strategy %s must be stable across identical inputs", strategy)
		assert.NotEmpty(t, a.Full)
	}
}

func TestGenerateInvalidStrategy(t *testing.T) {
	g := NewKeyGenerator(300)
	_, err := g.Generate(testEvent("a", time.Now()), types.KeyStrategy("nope"))
	assert.Error(t, err)
}

func TestTimeBucketedKeyToleratesSkew(t *testing.T) {
	g := NewKeyGenerator(300)
	// Two records of the same call, exported with a 10-second clock skew.
	// Both land in the same 300-second bucket.
	base := time.Unix(1705329000, 0).UTC()
	a, err := g.Generate(testEvent("a", base), types.StrategyTimeBucketed)
	require.NoError(t, err)
	b, err := g.Generate(testEvent("b", base.Add(10*time.Second)), types.StrategyTimeBucketed)
	require.NoError(t, err)
	assert.Equal(t, a.Full, b.Full)

	// Standard keys differ: the exact stage must not collapse them.
	sa, err := g.Generate(testEvent("a", base), types.StrategyStandard)
	require.NoError(t, err)
	sb, err := g.Generate(testEvent("b", base.Add(10*time.Second)), types.StrategyStandard)
	require.NoError(t, err)
	assert.NotEqual(t, sa.Full, sb.Full)
}

func TestFuzzyKeyIgnoresCountryPrefix(t *testing.T) {
	g := NewKeyGenerator(300)
	ts := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

	a := testEvent("a", ts)
	b := testEvent("b", ts)
	b.Number = "5551234567" // same line, no country code

	ka, err := g.Generate(a, types.StrategyFuzzy)
	require.NoError(t, err)
	kb, err := g.Generate(b, types.StrategyFuzzy)
	require.NoError(t, err)
	assert.Equal(t, ka.Full, kb.Full)
}

func TestContentFingerprint(t *testing.T) {
	a := ContentFingerprint("Your package has shipped and will arrive Tuesday", 5)
	b := ContentFingerprint("your package HAS shipped, will arrive tuesday!", 5)
	assert.Equal(t, a, b, "case and punctuation must not change the fingerprint")

	c := ContentFingerprint("completely different message about dinner plans tonight", 5)
	assert.NotEqual(t, a, c)

	assert.Empty(t, ContentFingerprint("", 5))
	assert.Empty(t, ContentFingerprint("   ", 5))
}

func TestDigitSuffix(t *testing.T) {
	assert.Equal(t, "1234567", digitSuffix("+1 (555) 123-4567", 7))
	assert.Equal(t, "1234567", digitSuffix("5551234567", 7))
	assert.Equal(t, "123", digitSuffix("123", 7))
	assert.Equal(t, "", digitSuffix("no digits", 7))
}
