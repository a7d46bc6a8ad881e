package types

import (
	"fmt"
	"time"
)

// DedupStrategy selects how much of the duplicate-detection ladder runs.
type DedupStrategy string

const (
	// DedupFast runs the exact and time-bucketed stages only.
	DedupFast DedupStrategy = "fast"
	// DedupComprehensive runs all four stages including fuzzy and semantic.
	DedupComprehensive DedupStrategy = "comprehensive"
)

// IsValid checks if the strategy value is valid.
func (s DedupStrategy) IsValid() bool {
	switch s {
	case DedupFast, DedupComprehensive:
		return true
	}
	return false
}

// JobConfig is the per-job configuration surface. Zero values mean "use the
// default"; ApplyDefaults fills them in before a job starts.
type JobConfig struct {
	BatchSize          int           `json:"batch_size" yaml:"batch_size"`
	ParallelWorkers    int           `json:"parallel_workers" yaml:"parallel_workers"`
	MaxMemoryUsageMB   int           `json:"max_memory_usage_mb" yaml:"max_memory_usage_mb"`
	QualityThreshold   float64       `json:"quality_threshold" yaml:"quality_threshold"`
	DedupStrategy      DedupStrategy `json:"duplicate_detection_strategy" yaml:"duplicate_detection_strategy"`
	EnableCaching      bool          `json:"enable_caching" yaml:"enable_caching"`
	EnableStreaming    bool          `json:"enable_streaming" yaml:"enable_streaming"`
	EnableDedup        bool          `json:"enable_dedup" yaml:"enable_dedup"`
	RetryAttempts      int           `json:"retry_attempts" yaml:"retry_attempts"`
	TimeoutSeconds     int           `json:"timeout_seconds" yaml:"timeout_seconds"`
	JobTimeoutMinutes  int           `json:"job_timeout_minutes" yaml:"job_timeout_minutes"`
	DefaultRegion      string        `json:"default_region" yaml:"default_region"`
	TimeToleranceSecs  int           `json:"time_tolerance_seconds" yaml:"time_tolerance_seconds"`
	StreamingThreshold int           `json:"streaming_threshold" yaml:"streaming_threshold"`
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		BatchSize:          1000,
		ParallelWorkers:    0, // 0 = runtime.NumCPU()
		MaxMemoryUsageMB:   2048,
		QualityThreshold:   0.7,
		DedupStrategy:      DedupComprehensive,
		EnableCaching:      true,
		EnableStreaming:    true,
		EnableDedup:        true,
		RetryAttempts:      3,
		TimeoutSeconds:     300,
		JobTimeoutMinutes:  60,
		DefaultRegion:      "US",
		TimeToleranceSecs:  300,
		StreamingThreshold: 50000,
	}
}

// ApplyDefaults fills zero-valued fields from DefaultJobConfig.
func (c *JobConfig) ApplyDefaults() {
	def := DefaultJobConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxMemoryUsageMB <= 0 {
		c.MaxMemoryUsageMB = def.MaxMemoryUsageMB
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = def.QualityThreshold
	}
	if c.DedupStrategy == "" {
		c.DedupStrategy = def.DedupStrategy
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = def.TimeoutSeconds
	}
	if c.JobTimeoutMinutes <= 0 {
		c.JobTimeoutMinutes = def.JobTimeoutMinutes
	}
	if c.DefaultRegion == "" {
		c.DefaultRegion = def.DefaultRegion
	}
	if c.TimeToleranceSecs <= 0 {
		c.TimeToleranceSecs = def.TimeToleranceSecs
	}
	if c.StreamingThreshold <= 0 {
		c.StreamingThreshold = def.StreamingThreshold
	}
}

// Validate checks if the configuration has valid values.
func (c JobConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive (got %d)", c.BatchSize)
	}
	if c.BatchSize > 100000 {
		return fmt.Errorf("batch_size too large (got %d, max 100000)", c.BatchSize)
	}
	if c.ParallelWorkers < 0 {
		return fmt.Errorf("parallel_workers cannot be negative (got %d)", c.ParallelWorkers)
	}
	if c.MaxMemoryUsageMB < 64 {
		return fmt.Errorf("max_memory_usage_mb too small (got %d, min 64)", c.MaxMemoryUsageMB)
	}
	if c.QualityThreshold < 0.0 || c.QualityThreshold > 1.0 {
		return fmt.Errorf("quality_threshold must be between 0.0 and 1.0 (got %.2f)", c.QualityThreshold)
	}
	if !c.DedupStrategy.IsValid() {
		return fmt.Errorf("invalid duplicate_detection_strategy: %s", c.DedupStrategy)
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > 10 {
		return fmt.Errorf("retry_attempts must be between 0 and 10 (got %d)", c.RetryAttempts)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive (got %d)", c.TimeoutSeconds)
	}
	if c.JobTimeoutMinutes <= 0 {
		return fmt.Errorf("job_timeout_minutes must be positive (got %d)", c.JobTimeoutMinutes)
	}
	if c.TimeToleranceSecs <= 0 {
		return fmt.Errorf("time_tolerance_seconds must be positive (got %d)", c.TimeToleranceSecs)
	}
	return nil
}

// JobTimeout returns the overall wall-clock budget for one job.
func (c JobConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMinutes) * time.Minute
}

// StageTimeout returns the per-stage operation timeout.
func (c JobConfig) StageTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
