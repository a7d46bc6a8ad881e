package dedup

import (
	"math"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// Field weights for the weighted similarity blend. Fixed by contract.
const (
	fuzzyWeightPhone     = 0.30
	fuzzyWeightTimestamp = 0.25
	fuzzyWeightDuration  = 0.15
	fuzzyWeightContent   = 0.20
	fuzzyWeightType      = 0.10
)

// FuzzyMatcher computes weighted multi-field similarity between candidate
// duplicate events. Stateless and safe for concurrent use.
type FuzzyMatcher struct {
	// threshold is the minimum weighted similarity for a pair to count as
	// a candidate duplicate. Default 0.70.
	threshold float64

	// maxSkew bounds the fuzzy stage to export clock drift. Default 1 hour.
	maxSkew time.Duration
}

// NewFuzzyMatcher creates a matcher with the given threshold and timestamp
// skew cap (zero values mean the 0.70 and 1 hour defaults).
func NewFuzzyMatcher(threshold float64, maxSkew time.Duration) *FuzzyMatcher {
	if threshold <= 0 {
		threshold = 0.70
	}
	if maxSkew <= 0 {
		maxSkew = time.Hour
	}
	return &FuzzyMatcher{threshold: threshold, maxSkew: maxSkew}
}

// Similarity returns the weighted similarity of two events in [0,1].
func (m *FuzzyMatcher) Similarity(a, b *types.CanonicalEvent) float64 {
	return fuzzyWeightPhone*PhoneSimilarity(a.Number, b.Number) +
		fuzzyWeightTimestamp*TimestampSimilarity(a.Timestamp, b.Timestamp) +
		fuzzyWeightDuration*DurationSimilarity(a.Duration, b.Duration) +
		fuzzyWeightContent*ContentSimilarity(a.Content, b.Content) +
		fuzzyWeightType*typeSimilarity(a, b)
}

// IsMatch reports whether two events meet the duplicate threshold. Events
// further apart than the skew cap never match, whatever their field
// similarity: two records of the same real event only ever differ by export
// clock drift, and without the gate two genuine calls to the same number
// with equal durations score above threshold on the non-time fields alone.
// This deliberately tightens the threshold-only contract; the cap is
// tunable through Config.MaxTimeSkewSecs.
func (m *FuzzyMatcher) IsMatch(a, b *types.CanonicalEvent) (float64, bool) {
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	sim := m.Similarity(a, b)
	if delta > m.maxSkew {
		return sim, false
	}
	return sim, sim >= m.threshold
}

// PhoneSimilarity compares two numbers: identical digit strings score 1.0,
// a shared 7-digit suffix scores 0.9 (same line behind different country
// or formatting prefixes), everything else falls back to edit-distance
// similarity over the digits.
func PhoneSimilarity(a, b string) float64 {
	da, db := digitSuffix(a, 32), digitSuffix(b, 32)
	if da == "" || db == "" {
		if da == db {
			return 1.0
		}
		return 0.0
	}
	if da == db {
		return 1.0
	}
	if len(da) >= 7 && len(db) >= 7 && digitSuffix(da, 7) == digitSuffix(db, 7) {
		return 0.9
	}
	return editDistanceSimilarity(da, db)
}

// TimestampSimilarity is a step function of the absolute time delta: 1.0
// at zero, decaying to 0.0 beyond 24 hours.
func TimestampSimilarity(a, b time.Time) float64 {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta == 0:
		return 1.0
	case delta <= time.Minute:
		return 0.95
	case delta <= 5*time.Minute:
		return 0.85
	case delta <= time.Hour:
		return 0.6
	case delta <= 24*time.Hour:
		return 0.3
	default:
		return 0.0
	}
}

// DurationSimilarity is a step function of the relative percentage
// difference between two durations.
func DurationSimilarity(a, b int) float64 {
	if a == b {
		return 1.0
	}
	longest := math.Max(float64(a), float64(b))
	if longest == 0 {
		return 1.0
	}
	rel := math.Abs(float64(a)-float64(b)) / longest
	switch {
	case rel <= 0.05:
		return 0.95
	case rel <= 0.10:
		return 0.9
	case rel <= 0.25:
		return 0.7
	case rel <= 0.50:
		return 0.4
	default:
		return 0.0
	}
}

// ContentSimilarity blends character-sequence similarity with word-level
// Jaccard overlap, equally weighted. Two empty contents are identical;
// one-sided content scores zero.
func ContentSimilarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return 0.5*editDistanceSimilarity(strings.ToLower(a), strings.ToLower(b)) +
		0.5*wordJaccard(a, b)
}

func typeSimilarity(a, b *types.CanonicalEvent) float64 {
	if a.Type == b.Type {
		return 1.0
	}
	return 0.0
}

// editDistanceSimilarity converts Levenshtein distance to [0,1].
func editDistanceSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(a, b)
	sim := 1.0 - float64(d)/float64(longest)
	if sim < 0 {
		return 0.0
	}
	return sim
}

// wordJaccard is |intersection| / |union| over lowercased word sets.
func wordJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(w, ".,!?;:'\"()")] = true
	}
	return out
}
