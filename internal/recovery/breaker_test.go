package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test-dep", DefaultBreakerConfig(), nil)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		assert.Equal(t, CircuitClosed, cb.State())
	}
	cb.RecordFailure() // fifth consecutive failure
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(), "non-consecutive failures must not open the circuit")
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())

	*now = now.Add(61 * time.Second)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestBreakerClosesAfterSuccessRun(t *testing.T) {
	cb, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*now = now.Add(61 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State(), "one success is not enough to close")
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	*now = now.Add(61 * time.Second)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestBreakerRegistryIsPerDependency(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig(), nil)

	pg := reg.For("postgres")
	cache := reg.For("cache")
	assert.NotSame(t, pg, cache)
	assert.Same(t, pg, reg.For("postgres"))

	for i := 0; i < 5; i++ {
		pg.RecordFailure()
	}
	assert.Equal(t, CircuitOpen, pg.State())
	assert.Equal(t, CircuitClosed, cache.State(), "one dependency's failures must not trip another's breaker")
}
