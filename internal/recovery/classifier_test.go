package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func TestClassifyByMessage(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		name     string
		err      error
		category types.ErrorCategory
		strategy types.RecoveryStrategy
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), types.CategoryNetwork, types.RecoveryRetry},
		{"dns failure", errors.New("lookup db.internal: no such host"), types.CategoryNetwork, types.RecoveryRetry},
		{"constraint violation", errors.New("ERROR: duplicate key value violates unique constraint"), types.CategoryDatabase, types.RecoveryRetry},
		{"sqlite busy", errors.New("sqlite: database is locked"), types.CategoryDatabase, types.RecoveryRetry},
		{"rate limited", errors.New("HTTP 429 too many requests"), types.CategoryRateLimit, types.RecoveryRetry},
		{"timeout", errors.New("operation timed out"), types.CategoryTimeout, types.RecoveryEscalate},
		{"oom", errors.New("cannot allocate memory"), types.CategoryMemory, types.RecoveryEscalate},
		{"auth", errors.New("permission denied"), types.CategoryPermission, types.RecoveryEscalate},
		{"bad config", errors.New("config: missing required field"), types.CategoryConfiguration, types.RecoveryEscalate},
		{"upstream", errors.New("503 service unavailable"), types.CategoryExternalService, types.RecoveryRetry},
		{"mystery", errors.New("something odd happened"), types.CategoryUnknown, types.RecoveryDeadLetter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := c.Classify(tt.err, types.ErrorContext{JobID: "job-1"})
			assert.Equal(t, tt.category, ve.Category)
			assert.Equal(t, tt.strategy, ve.RecoveryStrategy)
			assert.Equal(t, "job-1", ve.Context.JobID)
			assert.NotEmpty(t, ve.ErrorID)
			require.NoError(t, ve.Validate())
		})
	}
}

func TestClassifySentinelErrors(t *testing.T) {
	c := NewClassifier()

	ve := c.Classify(fmt.Errorf("stage: %w", context.DeadlineExceeded), types.ErrorContext{})
	assert.Equal(t, types.CategoryTimeout, ve.Category)
	assert.Equal(t, types.RecoveryEscalate, ve.RecoveryStrategy)
	assert.Equal(t, 0, ve.MaxRetries)

	ve = c.Classify(fmt.Errorf("sink: %w", ErrCircuitOpen), types.ErrorContext{})
	assert.Equal(t, types.CategoryExternalService, ve.Category)
}

func TestClassifyPassesThroughValidationError(t *testing.T) {
	c := NewClassifier()
	orig := &types.ValidationError{
		ErrorID:          "keep-me",
		Category:         types.CategoryDataQuality,
		Severity:         types.SeverityLow,
		Message:          "unparseable timestamp",
		Context:          types.ErrorContext{ItemID: "row-42"},
		RecoveryStrategy: types.RecoverySkip,
		MaxRetries:       1,
	}

	ve := c.Classify(fmt.Errorf("normalize: %w", orig), types.ErrorContext{JobID: "job-1", Stage: "data_normalization"})
	assert.Equal(t, "keep-me", ve.ErrorID)
	assert.Equal(t, types.CategoryDataQuality, ve.Category)
	// Context fills in without clobbering existing values.
	assert.Equal(t, "row-42", ve.Context.ItemID)
	assert.Equal(t, "job-1", ve.Context.JobID)
	assert.Equal(t, "data_normalization", ve.Context.Stage)
	// The original is not mutated.
	assert.Empty(t, orig.Context.JobID)
}

func TestPolicyTable(t *testing.T) {
	db := PolicyFor(types.CategoryDatabase)
	assert.Equal(t, 3, db.MaxRetries)

	net := PolicyFor(types.CategoryNetwork)
	assert.Equal(t, 5, net.MaxRetries)

	for _, cat := range []types.ErrorCategory{types.CategoryMemory, types.CategoryPermission} {
		p := PolicyFor(cat)
		assert.Equal(t, 0, p.MaxRetries, "%s must never retry", cat)
		assert.Equal(t, types.RecoveryEscalate, p.Strategy)
	}

	dq := PolicyFor(types.CategoryDataQuality)
	assert.Equal(t, 1, dq.MaxRetries)
	assert.Equal(t, types.RecoverySkip, dq.Strategy)
}
