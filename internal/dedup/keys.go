package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// KeyGenerator derives deterministic composite keys from canonical events.
// For a fixed strategy the generator is a pure function: identical inputs
// always yield identical keys, with no randomness and no wall-clock
// dependence beyond the event's own timestamp.
type KeyGenerator struct {
	// toleranceSecs is the bucket width for the time_bucketed strategy.
	toleranceSecs int64
}

// NewKeyGenerator creates a generator with the given time-bucket tolerance
// in seconds (0 means the 300 s default).
func NewKeyGenerator(toleranceSecs int) *KeyGenerator {
	if toleranceSecs <= 0 {
		toleranceSecs = 300
	}
	return &KeyGenerator{toleranceSecs: int64(toleranceSecs)}
}

// Generate derives the composite key for an event under a strategy.
func (g *KeyGenerator) Generate(ev *types.CanonicalEvent, strategy types.KeyStrategy) (types.CompositeKey, error) {
	var components map[string]string

	switch strategy {
	case types.StrategyStandard:
		components = map[string]string{
			"number":    ev.Number,
			"ts":        strconv.FormatInt(ev.Timestamp.Unix(), 10),
			"type":      string(ev.Type),
			"direction": string(ev.Direction),
		}
	case types.StrategyTimeBucketed:
		bucket := ev.Timestamp.Unix() / g.toleranceSecs
		components = map[string]string{
			"number":    ev.Number,
			"bucket":    strconv.FormatInt(bucket, 10),
			"type":      string(ev.Type),
			"direction": string(ev.Direction),
		}
	case types.StrategyFuzzy:
		// Tolerant of formatting drift: last 7 digits of the number and a
		// minute-level timestamp.
		components = map[string]string{
			"number_suffix": digitSuffix(ev.Number, 7),
			"ts_minute":     strconv.FormatInt(ev.Timestamp.Unix()/60, 10),
			"type":          string(ev.Type),
		}
	case types.StrategyContentBased:
		components = map[string]string{
			"number":      ev.Number,
			"type":        string(ev.Type),
			"fingerprint": ContentFingerprint(ev.Content, 5),
		}
	default:
		return types.CompositeKey{}, fmt.Errorf("unknown key strategy: %s", strategy)
	}

	full := canonicalJoin(components)
	return types.CompositeKey{
		Primary:    hashString(full),
		Secondary:  hashString(components["number"] + "|" + components["type"]),
		Full:       full,
		Components: components,
	}, nil
}

// canonicalJoin renders components as "k=v|k=v" with keys sorted, so the
// same component set always produces the same string.
func canonicalJoin(components map[string]string) string {
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + components[k]
	}
	return strings.Join(parts, "|")
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// digitSuffix returns the last n digits of a value, ignoring formatting.
func digitSuffix(s string, n int) string {
	var digits []rune
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}

// stopwords excluded from content fingerprints.
var fingerprintStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "it": true, "you": true, "i": true,
	"my": true, "me": true, "we": true, "be": true, "this": true, "that": true,
	"with": true, "your": true, "have": true, "not": true, "so": true, "do": true,
}

// ContentFingerprint hashes the top-n non-stopword keywords of a content
// string, sorted, so near-identical messages collapse to the same value.
// Keywords rank by frequency, ties broken alphabetically.
func ContentFingerprint(content string, n int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) < 3 || fingerprintStopwords[w] {
			continue
		}
		counts[w]++
	}
	if len(counts) == 0 {
		return ""
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	sort.Strings(words)
	return hashString(strings.Join(words, " "))
}
