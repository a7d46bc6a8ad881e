package types

import (
	"fmt"
	"time"
)

// ErrorCategory buckets a pipeline failure by its root cause.
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryDataQuality     ErrorCategory = "data_quality"
	CategoryDatabase        ErrorCategory = "database"
	CategoryNetwork         ErrorCategory = "network"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryMemory          ErrorCategory = "memory"
	CategoryPermission      ErrorCategory = "permission"
	CategoryRateLimit       ErrorCategory = "rate_limit"
	CategoryExternalService ErrorCategory = "external_service"
	CategoryConfiguration   ErrorCategory = "configuration"
	CategorySystem          ErrorCategory = "system"
	CategoryUnknown         ErrorCategory = "unknown"
)

// IsValid checks if the category value is valid.
func (c ErrorCategory) IsValid() bool {
	switch c {
	case CategoryValidation, CategoryDataQuality, CategoryDatabase,
		CategoryNetwork, CategoryTimeout, CategoryMemory, CategoryPermission,
		CategoryRateLimit, CategoryExternalService, CategoryConfiguration,
		CategorySystem, CategoryUnknown:
		return true
	}
	return false
}

// Severity grades how urgently an error needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RecoveryStrategy is what the pipeline should do with a classified error.
type RecoveryStrategy string

const (
	RecoveryRetry      RecoveryStrategy = "retry"
	RecoverySkip       RecoveryStrategy = "skip"
	RecoveryDeadLetter RecoveryStrategy = "dead_letter"
	RecoveryEscalate   RecoveryStrategy = "escalate"
)

// IsValid checks if the recovery strategy value is valid.
func (r RecoveryStrategy) IsValid() bool {
	switch r {
	case RecoveryRetry, RecoverySkip, RecoveryDeadLetter, RecoveryEscalate:
		return true
	}
	return false
}

// ErrorContext pins a ValidationError to the job, stage, and item where it
// occurred so failures remain traceable after dead-lettering.
type ErrorContext struct {
	JobID      string `json:"job_id"`
	UserID     string `json:"user_id,omitempty"`
	Operation  string `json:"operation,omitempty"`
	Stage      string `json:"stage,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// ValidationError is a classified pipeline failure. It implements error so
// it can flow through ordinary error returns, but most instances describe
// expected data-quality outcomes rather than faults.
type ValidationError struct {
	ErrorID          string           `json:"error_id"`
	Category         ErrorCategory    `json:"category"`
	Severity         Severity         `json:"severity"`
	Message          string           `json:"message"`
	Context          ErrorContext     `json:"context"`
	RecoveryStrategy RecoveryStrategy `json:"recovery_strategy"`
	RetryAfter       time.Duration    `json:"retry_after,omitempty"`
	MaxRetries       int              `json:"max_retries"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Context.ItemID != "" {
		return fmt.Sprintf("[%s/%s] %s (item %s)", e.Category, e.Severity, e.Message, e.Context.ItemID)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Severity, e.Message)
}

// Validate checks if the error has valid field values.
func (e *ValidationError) Validate() error {
	if e.Message == "" {
		return fmt.Errorf("message is required")
	}
	if !e.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", e.Category)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", e.Severity)
	}
	if !e.RecoveryStrategy.IsValid() {
		return fmt.Errorf("invalid recovery strategy: %s", e.RecoveryStrategy)
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative (got %d)", e.MaxRetries)
	}
	return nil
}
