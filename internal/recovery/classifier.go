package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// Policy is the per-category retry budget and default handling.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Severity   types.Severity
	Strategy   types.RecoveryStrategy
}

// policies maps every error category to its handling. Memory, permission,
// and configuration failures never retry: retrying cannot fix an exhausted
// heap or a bad credential, and looping on them hides the real problem.
var policies = map[types.ErrorCategory]Policy{
	types.CategoryValidation:      {MaxRetries: 1, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Severity: types.SeverityLow, Strategy: types.RecoverySkip},
	types.CategoryDataQuality:     {MaxRetries: 1, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second, Severity: types.SeverityLow, Strategy: types.RecoverySkip},
	types.CategoryDatabase:        {MaxRetries: 3, BaseDelay: 1 * time.Second, MaxDelay: 60 * time.Second, Severity: types.SeverityHigh, Strategy: types.RecoveryRetry},
	types.CategoryNetwork:         {MaxRetries: 5, BaseDelay: 2 * time.Second, MaxDelay: 120 * time.Second, Severity: types.SeverityMedium, Strategy: types.RecoveryRetry},
	types.CategoryTimeout:         {MaxRetries: 0, BaseDelay: 0, MaxDelay: 0, Severity: types.SeverityHigh, Strategy: types.RecoveryEscalate},
	types.CategoryMemory:          {MaxRetries: 0, BaseDelay: 0, MaxDelay: 0, Severity: types.SeverityCritical, Strategy: types.RecoveryEscalate},
	types.CategoryPermission:      {MaxRetries: 0, BaseDelay: 0, MaxDelay: 0, Severity: types.SeverityCritical, Strategy: types.RecoveryEscalate},
	types.CategoryRateLimit:       {MaxRetries: 4, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second, Severity: types.SeverityMedium, Strategy: types.RecoveryRetry},
	types.CategoryExternalService: {MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Severity: types.SeverityMedium, Strategy: types.RecoveryRetry},
	types.CategoryConfiguration:   {MaxRetries: 0, BaseDelay: 0, MaxDelay: 0, Severity: types.SeverityCritical, Strategy: types.RecoveryEscalate},
	types.CategorySystem:          {MaxRetries: 2, BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second, Severity: types.SeverityHigh, Strategy: types.RecoveryRetry},
	types.CategoryUnknown:         {MaxRetries: 1, BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second, Severity: types.SeverityMedium, Strategy: types.RecoveryDeadLetter},
}

// PolicyFor returns the handling policy for a category.
func PolicyFor(category types.ErrorCategory) Policy {
	if p, ok := policies[category]; ok {
		return p
	}
	return policies[types.CategoryUnknown]
}

// categoryPatterns maps message substrings to categories. Checked in order;
// first hit wins.
var categoryPatterns = []struct {
	substrings []string
	category   types.ErrorCategory
}{
	{[]string{"permission denied", "unauthorized", "forbidden", "access denied", "authentication"}, types.CategoryPermission},
	{[]string{"out of memory", "cannot allocate", "memory limit"}, types.CategoryMemory},
	{[]string{"rate limit", "too many requests", "429"}, types.CategoryRateLimit},
	{[]string{"deadline exceeded", "timed out", "timeout"}, types.CategoryTimeout},
	{[]string{"connection refused", "connection reset", "no such host", "network", "broken pipe", "dns"}, types.CategoryNetwork},
	{[]string{"sql", "database", "constraint", "duplicate key", "deadlock", "pgx", "sqlite"}, types.CategoryDatabase},
	{[]string{"config", "missing required", "invalid setting"}, types.CategoryConfiguration},
	{[]string{"service unavailable", "bad gateway", "upstream", "503", "502"}, types.CategoryExternalService},
}

// Classifier maps raw errors to classified ValidationErrors with a recovery
// strategy attached. Stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify wraps err into a ValidationError. An error that is already a
// ValidationError passes through with its context updated rather than being
// re-classified.
func (c *Classifier) Classify(err error, errCtx types.ErrorContext) *types.ValidationError {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		out := *ve
		mergeContext(&out.Context, errCtx)
		return &out
	}

	category := c.categorize(err)
	policy := PolicyFor(category)
	return &types.ValidationError{
		ErrorID:          uuid.NewString(),
		Category:         category,
		Severity:         policy.Severity,
		Message:          err.Error(),
		Context:          errCtx,
		RecoveryStrategy: policy.Strategy,
		RetryAfter:       policy.BaseDelay,
		MaxRetries:       policy.MaxRetries,
	}
}

func (c *Classifier) categorize(err error) types.ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return types.CategorySystem
	}
	if errors.Is(err, ErrCircuitOpen) {
		return types.CategoryExternalService
	}

	msg := strings.ToLower(err.Error())
	for _, p := range categoryPatterns {
		for _, s := range p.substrings {
			if strings.Contains(msg, s) {
				return p.category
			}
		}
	}
	return types.CategoryUnknown
}

// mergeContext fills empty fields of dst from src without clobbering values
// the original classification already carries.
func mergeContext(dst *types.ErrorContext, src types.ErrorContext) {
	if dst.JobID == "" {
		dst.JobID = src.JobID
	}
	if dst.UserID == "" {
		dst.UserID = src.UserID
	}
	if dst.Operation == "" {
		dst.Operation = src.Operation
	}
	if dst.Stage == "" {
		dst.Stage = src.Stage
	}
	if dst.ItemID == "" {
		dst.ItemID = src.ItemID
	}
}
