package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// e164Shape is the final shape check applied to every produced number,
// including numbers built by the fallback heuristics.
var e164Shape = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// PhoneResult is the outcome of normalizing one phone number.
type PhoneResult struct {
	// E164 is the canonical form, e.g. "+15551234567". Empty when the
	// input could not be shaped into a plausible number at all.
	E164          string `json:"e164"`
	National      string `json:"national,omitempty"`
	International string `json:"international,omitempty"`

	// Carrier is a best-effort prefix-table inference. Informational only;
	// never treated as authoritative.
	Carrier string `json:"carrier,omitempty"`

	// UsedFallback is true when the library parse failed and the
	// digit-count heuristic produced the number instead.
	UsedFallback bool `json:"used_fallback,omitempty"`

	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// PhoneConfig holds the injected tables for phone normalization.
type PhoneConfig struct {
	// DefaultRegion is the ISO 3166-1 region assumed for numbers without a
	// country code. Default: "US".
	DefaultRegion string

	// CarrierPrefixes maps leading digits of an E.164 number (including
	// country code, without "+") to a carrier name. Longest prefix wins.
	CarrierPrefixes map[string]string
}

// DefaultPhoneConfig returns the default phone normalization config.
func DefaultPhoneConfig() PhoneConfig {
	return PhoneConfig{
		DefaultRegion:   "US",
		CarrierPrefixes: nil,
	}
}

// PhoneNormalizer converts raw phone strings to E.164 and related forms.
// Safe for concurrent use.
type PhoneNormalizer struct {
	cfg      PhoneConfig
	prefixes []string // carrier prefixes sorted longest-first
}

// NewPhoneNormalizer creates a normalizer with the given config.
func NewPhoneNormalizer(cfg PhoneConfig) *PhoneNormalizer {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "US"
	}
	prefixes := make([]string, 0, len(cfg.CarrierPrefixes))
	for p := range cfg.CarrierPrefixes {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	return &PhoneNormalizer{cfg: cfg, prefixes: prefixes}
}

// Normalize parses a raw phone string into E.164, national, and
// international forms. Parse failures fall back to a digit-count heuristic:
// 10 digits are assumed NANP ("+1" prefix), 11 digits starting with "1" get
// a "+" prepended. The result still fails validation if the final value
// does not pass the E.164 shape check.
func (n *PhoneNormalizer) Normalize(raw string) PhoneResult {
	res := PhoneResult{}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		res.Errors = append(res.Errors, "empty phone number")
		return res
	}

	parsed, err := phonenumbers.Parse(trimmed, n.cfg.DefaultRegion)
	if err == nil && phonenumbers.IsPossibleNumber(parsed) {
		res.E164 = phonenumbers.Format(parsed, phonenumbers.E164)
		res.National = phonenumbers.Format(parsed, phonenumbers.NATIONAL)
		res.International = phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
	} else {
		e164, fallbackErrs := fallbackE164(trimmed)
		res.E164 = e164
		res.UsedFallback = true
		res.Errors = append(res.Errors, fallbackErrs...)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("parse failed: %v", err))
		}
	}

	if res.E164 == "" || !e164Shape.MatchString(res.E164) {
		res.Errors = append(res.Errors, fmt.Sprintf("result %q is not a valid E.164 number", res.E164))
		return res
	}

	res.IsValid = true
	res.Carrier = n.inferCarrier(res.E164)
	return res
}

// inferCarrier returns the carrier for the longest matching prefix, or "".
func (n *PhoneNormalizer) inferCarrier(e164 string) string {
	digits := strings.TrimPrefix(e164, "+")
	for _, p := range n.prefixes {
		if strings.HasPrefix(digits, p) {
			return n.cfg.CarrierPrefixes[p]
		}
	}
	return ""
}

// fallbackE164 applies the digit-count heuristic to input the library could
// not parse. It returns the best-effort E.164 string (possibly empty) and
// any notes about what was assumed.
func fallbackE164(raw string) (string, []string) {
	digits := stripNonDigits(raw)
	switch {
	case len(digits) == 10:
		return "+1" + digits, []string{"assumed +1 country code for 10-digit number"}
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits, []string{"prepended + to 11-digit number starting with 1"}
	case len(digits) >= 11 && len(digits) <= 15:
		// Looks like an international number that lost its plus.
		return "+" + digits, []string{"prepended + to international-length digit string"}
	default:
		return "", []string{fmt.Sprintf("cannot infer country code from %d digits", len(digits))}
	}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
