package dedup

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// Config controls the detection ladder.
type Config struct {
	// Strategy selects fast (key stages only) or comprehensive (all four).
	Strategy types.DedupStrategy

	// TimeToleranceSecs is the bucket width for the time-bucketed stage.
	TimeToleranceSecs int

	// FuzzyThreshold is the minimum weighted similarity for the fuzzy stage.
	FuzzyThreshold float64

	// MaxTimeSkewSecs caps the timestamp distance between fuzzy-matched
	// pairs. Pairs further apart never match regardless of similarity;
	// this keeps recurring real events (daily calls to the same contact)
	// from collapsing.
	MaxTimeSkewSecs int

	// SemanticThreshold is the minimum content similarity for the semantic
	// stage. Strictly greater-than.
	SemanticThreshold float64

	// MaxBlockSize caps pairwise comparison blocks. Blocks larger than this
	// are skipped by the quadratic stages rather than blowing the job
	// timeout; the key-based stages already handled their exact members.
	MaxBlockSize int
}

// DefaultConfig returns the standard detection configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:          types.DedupComprehensive,
		TimeToleranceSecs: 300,
		FuzzyThreshold:    0.70,
		MaxTimeSkewSecs:   3600,
		SemanticThreshold: 0.80,
		MaxBlockSize:      500,
	}
}

// ApplyDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.TimeToleranceSecs <= 0 {
		c.TimeToleranceSecs = def.TimeToleranceSecs
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = def.FuzzyThreshold
	}
	if c.MaxTimeSkewSecs <= 0 {
		c.MaxTimeSkewSecs = def.MaxTimeSkewSecs
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = def.SemanticThreshold
	}
	if c.MaxBlockSize <= 0 {
		c.MaxBlockSize = def.MaxBlockSize
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !c.Strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", c.Strategy)
	}
	if c.TimeToleranceSecs <= 0 {
		return fmt.Errorf("time tolerance must be positive (got %d)", c.TimeToleranceSecs)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in (0,1] (got %.2f)", c.FuzzyThreshold)
	}
	if c.MaxTimeSkewSecs <= 0 {
		return fmt.Errorf("max time skew must be positive (got %d)", c.MaxTimeSkewSecs)
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold >= 1 {
		return fmt.Errorf("semantic threshold must be in (0,1) (got %.2f)", c.SemanticThreshold)
	}
	if c.MaxBlockSize <= 1 {
		return fmt.Errorf("max block size must be at least 2 (got %d)", c.MaxBlockSize)
	}
	return nil
}

// ConfigFromEnv builds a config from CDRPIPE_DEDUP_* environment variables,
// starting from defaults. Unset or malformed values keep their defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CDRPIPE_DEDUP_STRATEGY"); v != "" {
		if s := types.DedupStrategy(v); s.IsValid() {
			cfg.Strategy = s
		}
	}
	if v := os.Getenv("CDRPIPE_DEDUP_TIME_TOLERANCE_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TimeToleranceSecs = n
		}
	}
	if v := os.Getenv("CDRPIPE_DEDUP_FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("CDRPIPE_DEDUP_MAX_TIME_SKEW_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTimeSkewSecs = n
		}
	}
	if v := os.Getenv("CDRPIPE_DEDUP_SEMANTIC_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.SemanticThreshold = f
		}
	}
	if v := os.Getenv("CDRPIPE_DEDUP_MAX_BLOCK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			cfg.MaxBlockSize = n
		}
	}
	return cfg
}
