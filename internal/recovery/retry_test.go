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

func newTestRetryManager() *RetryManager {
	m := NewRetryManager(nil, nil, nil)
	m.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return m
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	m := newTestRetryManager()
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{Operation: "write"}, func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.Nil(t, ve)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesWithinBudget(t *testing.T) {
	m := newTestRetryManager()
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{Operation: "write"}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	assert.Nil(t, ve)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhaustsBudget(t *testing.T) {
	m := newTestRetryManager()
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{Operation: "write"}, func(ctx context.Context) error {
		calls++
		return errors.New("pgx: database connection lost")
	})
	require.NotNil(t, ve)
	assert.Equal(t, types.CategoryDatabase, ve.Category)
	// database policy: 3 retries = 4 attempts total
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, ve.Context.RetryCount)
}

func TestWithCapBoundsCategoryBudget(t *testing.T) {
	m := newTestRetryManager().WithCap(1)
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{Operation: "write"}, func(ctx context.Context) error {
		calls++
		return errors.New("pgx: database connection lost")
	})
	require.NotNil(t, ve)
	assert.Equal(t, types.CategoryDatabase, ve.Category)
	// database policy allows 3 retries; the cap shrinks that to 1.
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, ve.Context.RetryCount)
	assert.Equal(t, 1, ve.MaxRetries)
}

func TestWithCapNegativeRemovesCap(t *testing.T) {
	m := newTestRetryManager().WithCap(0).WithCap(-1)
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{Operation: "write"}, func(ctx context.Context) error {
		calls++
		return errors.New("pgx: database connection lost")
	})
	require.NotNil(t, ve)
	assert.Equal(t, 4, calls)
}

func TestExecuteSkipStrategyNeverRetries(t *testing.T) {
	m := newTestRetryManager()
	calls := 0
	dq := &types.ValidationError{
		ErrorID:          "dq-1",
		Category:         types.CategoryDataQuality,
		Severity:         types.SeverityLow,
		Message:          "bad row",
		RecoveryStrategy: types.RecoverySkip,
		MaxRetries:       1,
	}
	ve := m.Execute(context.Background(), types.ErrorContext{}, func(ctx context.Context) error {
		calls++
		return dq
	})
	require.NotNil(t, ve)
	assert.Equal(t, types.RecoverySkip, ve.RecoveryStrategy)
	assert.Equal(t, 1, calls, "skip strategy must not retry")
}

func TestExecuteEscalateFailsFast(t *testing.T) {
	m := newTestRetryManager()
	calls := 0
	ve := m.Execute(context.Background(), types.ErrorContext{}, func(ctx context.Context) error {
		calls++
		return errors.New("cannot allocate memory")
	})
	require.NotNil(t, ve)
	assert.Equal(t, types.RecoveryEscalate, ve.RecoveryStrategy)
	assert.Equal(t, 1, calls)
}

func TestExecuteOnOpensBreaker(t *testing.T) {
	breakers := NewBreakerRegistry(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Minute}, nil)
	m := NewRetryManager(nil, breakers, nil)
	m.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	ve := m.ExecuteOn(context.Background(), "postgres", types.ErrorContext{}, func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.NotNil(t, ve)
	// network policy allows 5 retries, but the breaker opens after 2
	// consecutive failures and blocks the third attempt.
	assert.Equal(t, 2, calls)
	assert.Equal(t, CircuitOpen, breakers.For("postgres").State())
	assert.Equal(t, types.CategoryExternalService, ve.Category)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second} {
		got := Backoff(p, attempt)
		assert.InDelta(t, float64(want), float64(got), float64(want)*0.11, "attempt %d", attempt)
	}
}

func TestExecuteHonorsCanceledContext(t *testing.T) {
	m := NewRetryManager(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ve := m.Execute(ctx, types.ErrorContext{}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	})
	require.NotNil(t, ve)
	assert.Equal(t, 1, calls)
}
