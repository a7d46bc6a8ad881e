package recovery

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// RetryManager executes operations with classification-driven retry. The
// per-category policy decides the budget; backoff doubles per attempt up to
// the category's cap, with ±10% jitter so synchronized workers do not
// hammer a recovering dependency in lockstep.
type RetryManager struct {
	classifier *Classifier
	breakers   *BreakerRegistry
	logger     *zap.Logger

	// maxRetriesCap, when >= 0, bounds every category's retry budget.
	// The job-level retry_attempts option flows in through WithCap.
	maxRetriesCap int

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryManager creates a retry manager. Breakers may be nil if no
// external dependency gating is wanted; a nil logger disables logging.
func NewRetryManager(classifier *Classifier, breakers *BreakerRegistry, logger *zap.Logger) *RetryManager {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryManager{
		classifier:    classifier,
		breakers:      breakers,
		logger:        logger,
		maxRetriesCap: -1,
		sleep:         sleepCtx,
	}
}

// WithCap returns a manager sharing this manager's classifier, breakers,
// and logger whose retry budget is capped at n for every category. A
// negative n removes the cap. The receiver is not modified, so one shared
// manager can serve jobs with different retry_attempts settings.
func (m *RetryManager) WithCap(n int) *RetryManager {
	clone := *m
	clone.maxRetriesCap = n
	return &clone
}

// Execute runs fn, retrying on classified-retriable failures within the
// category's budget. The returned error, if any, is always a classified
// *types.ValidationError carrying the final retry count.
func (m *RetryManager) Execute(ctx context.Context, errCtx types.ErrorContext, fn func(context.Context) error) *types.ValidationError {
	return m.ExecuteOn(ctx, "", errCtx, fn)
}

// ExecuteOn is Execute gated by the named dependency's circuit breaker.
// An empty dependency name skips breaker checks.
func (m *RetryManager) ExecuteOn(ctx context.Context, dependency string, errCtx types.ErrorContext, fn func(context.Context) error) *types.ValidationError {
	var lastErr *types.ValidationError

	for attempt := 0; ; attempt++ {
		if dependency != "" && m.breakers != nil {
			if err := m.breakers.For(dependency).Allow(); err != nil {
				ve := m.classifier.Classify(fmt.Errorf("%s: %w", dependency, err), errCtx)
				ve.Context.RetryCount = attempt
				return ve
			}
		}

		err := fn(ctx)
		if err == nil {
			if dependency != "" && m.breakers != nil {
				m.breakers.For(dependency).RecordSuccess()
			}
			if attempt > 0 {
				m.logger.Info("operation recovered",
					zap.String("operation", errCtx.Operation),
					zap.Int("attempts", attempt+1))
			}
			return nil
		}

		if dependency != "" && m.breakers != nil {
			m.breakers.For(dependency).RecordFailure()
		}

		ve := m.classifier.Classify(err, errCtx)
		ve.Context.RetryCount = attempt
		if m.maxRetriesCap >= 0 && ve.MaxRetries > m.maxRetriesCap {
			ve.MaxRetries = m.maxRetriesCap
		}
		lastErr = ve

		if ve.RecoveryStrategy != types.RecoveryRetry || attempt >= ve.MaxRetries {
			return lastErr
		}
		if ctx.Err() != nil {
			canceled := m.classifier.Classify(ctx.Err(), errCtx)
			canceled.Context.RetryCount = attempt
			return canceled
		}

		delay := Backoff(PolicyFor(ve.Category), attempt)
		m.logger.Warn("operation failed, retrying",
			zap.String("operation", errCtx.Operation),
			zap.String("category", string(ve.Category)),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", ve.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := m.sleep(ctx, delay); err != nil {
			canceled := m.classifier.Classify(err, errCtx)
			canceled.Context.RetryCount = attempt
			return canceled
		}
	}
}

// Backoff computes the delay before retry number attempt (0-based):
// min(base * 2^attempt, max) with ±10% jitter.
func Backoff(policy Policy, attempt int) time.Duration {
	delay := policy.BaseDelay << uint(attempt)
	if delay > policy.MaxDelay || delay <= 0 {
		delay = policy.MaxDelay
	}
	jitter := 1.0 + (rand.Float64()*0.2 - 0.1)
	return time.Duration(float64(delay) * jitter)
}

// sleepCtx sleeps for d or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
