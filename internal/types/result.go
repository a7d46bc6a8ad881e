package types

import (
	"fmt"
	"time"
)

// Stage is a phase of the validation pipeline state machine. Transitions
// are strictly forward; a failed stage moves directly to StageFailed and no
// further stages run.
type Stage string

const (
	StageInitialization      Stage = "initialization"
	StageFieldMapping        Stage = "field_mapping"
	StageNormalization       Stage = "data_normalization"
	StageDuplicateDetection  Stage = "duplicate_detection"
	StageDatabaseIntegration Stage = "database_integration"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// IsValid checks if the stage value is valid.
func (s Stage) IsValid() bool {
	switch s {
	case StageInitialization, StageFieldMapping, StageNormalization,
		StageDuplicateDetection, StageDatabaseIntegration, StageCompleted, StageFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the stage ends the job.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// order returns the forward position of a non-terminal stage.
func (s Stage) order() int {
	switch s {
	case StageInitialization:
		return 0
	case StageFieldMapping:
		return 1
	case StageNormalization:
		return 2
	case StageDuplicateDetection:
		return 3
	case StageDatabaseIntegration:
		return 4
	case StageCompleted:
		return 5
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. StageFailed is reachable from any non-terminal stage.
func (s Stage) CanTransitionTo(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return next.order() == s.order()+1
}

// NormalizationStats summarizes the data_normalization stage.
type NormalizationStats struct {
	TotalRecords   int `json:"total_records"`
	Normalized     int `json:"normalized"`
	Skipped        int `json:"skipped"`
	DeadLettered   int `json:"dead_lettered"`
	PhoneFallbacks int `json:"phone_fallbacks"` // digit-count heuristic used
	PIIRedactions  int `json:"pii_redactions"`
}

// DuplicateStats summarizes the duplicate_detection stage, counted per stage
// so shrink-only behavior is observable.
type DuplicateStats struct {
	InputEvents     int `json:"input_events"`
	OutputEvents    int `json:"output_events"`
	ExactDuplicates int `json:"exact_duplicates"`
	TimeBucketed    int `json:"time_bucketed_duplicates"`
	FuzzyMatched    int `json:"fuzzy_duplicates"`
	SemanticMatched int `json:"semantic_duplicates"`
	GroupsMerged    int `json:"groups_merged"`
	ComparisonsMade int `json:"comparisons_made"`
}

// RemovedTotal returns the number of events collapsed away by dedup.
func (d DuplicateStats) RemovedTotal() int {
	return d.ExactDuplicates + d.TimeBucketed + d.FuzzyMatched + d.SemanticMatched
}

// PerformanceMetrics captures the throughput and resource profile of a job
// and whether the published processing targets were met.
type PerformanceMetrics struct {
	ProcessingTime   time.Duration `json:"processing_time"`
	PeakMemoryMB     float64       `json:"peak_memory_mb"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
	ExecutionMode    string        `json:"execution_mode"` // "streaming" or "parallel"

	// Target compliance: 100k rows < 5 min, 1M rows < 30 min, peak < 2 GB.
	MetTimeTarget   bool `json:"met_time_target"`
	MetMemoryTarget bool `json:"met_memory_target"`
}

// JobStatus is one progress update emitted to the job-status sink as a job
// moves through the pipeline stages.
type JobStatus struct {
	JobID         string    `json:"job_id"`
	UserID        string    `json:"user_id"`
	Stage         Stage     `json:"stage"`
	Progress      float64   `json:"progress"` // 0.0 - 1.0
	Message       string    `json:"message"`
	ProcessedRows int       `json:"processed_rows"`
	TotalRows     int       `json:"total_rows"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidationResult is the single user-visible outcome of a job. It is
// always returned, including on failure, so callers can distinguish
// "succeeded with N items dead-lettered" from "failed outright".
type ValidationResult struct {
	JobID   string `json:"job_id"`
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`

	Events   []*CanonicalEvent `json:"events"`
	Contacts []*ContactSummary `json:"contacts,omitempty"`
	Mappings []*FieldMapping   `json:"mappings"`

	NormalizationStats NormalizationStats `json:"normalization_stats"`
	DuplicateStats     DuplicateStats     `json:"duplicate_stats"`
	Metrics            PerformanceMetrics `json:"metrics"`

	// QualityScore blends mapping quality, normalization success rate, and
	// merge quality into one [0,1] figure.
	QualityScore float64 `json:"quality_score"`

	Errors   []*ValidationError `json:"errors,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

// Validate checks internal consistency of the result.
func (r *ValidationResult) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.QualityScore < 0.0 || r.QualityScore > 1.0 {
		return fmt.Errorf("quality_score must be between 0.0 and 1.0 (got %.2f)", r.QualityScore)
	}
	if r.Success {
		for _, e := range r.Errors {
			if e.RecoveryStrategy == RecoveryEscalate {
				return fmt.Errorf("successful result cannot carry escalated error %s", e.ErrorID)
			}
		}
	}
	return nil
}
