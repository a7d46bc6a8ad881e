package normalize

import (
	"regexp"
	"strings"
)

// PIICategory names a class of personally identifiable information.
type PIICategory string

const (
	PIIPhone      PIICategory = "phone"
	PIIEmail      PIICategory = "email"
	PIISSN        PIICategory = "ssn"
	PIICreditCard PIICategory = "credit_card"
	PIIAddress    PIICategory = "address"
)

// MaskMode selects how detected PII is sanitized.
type MaskMode string

const (
	// MaskLengthPreserving replaces each character of the match with '*',
	// keeping the content length stable. This is the default.
	MaskLengthPreserving MaskMode = "length_preserving"
	// MaskPlaceholder substitutes the whole match with a category tag such
	// as "[EMAIL]".
	MaskPlaceholder MaskMode = "placeholder"
)

// IsValid checks if the mask mode value is valid.
func (m MaskMode) IsValid() bool {
	return m == MaskLengthPreserving || m == MaskPlaceholder
}

// ContentCategory is a best-effort classification of message content.
type ContentCategory string

const (
	ContentSpam     ContentCategory = "spam"
	ContentBusiness ContentCategory = "business"
	ContentPersonal ContentCategory = "personal"
	ContentGeneral  ContentCategory = "general"
)

// ContentResult is the outcome of sanitizing one content value.
type ContentResult struct {
	// Sanitized is the content with all detected PII masked.
	Sanitized string `json:"sanitized"`

	// PIIFound lists the categories detected, in detection order without
	// duplicates.
	PIIFound []PIICategory `json:"pii_found,omitempty"`

	Category ContentCategory `json:"category"`

	// Language is a best-effort two-letter guess ("en", "es", "fr") or ""
	// when nothing matched.
	Language string `json:"language,omitempty"`

	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ContentConfig holds the injected settings for content sanitization.
type ContentConfig struct {
	MaskMode MaskMode
}

// DefaultContentConfig returns the default content config.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{MaskMode: MaskLengthPreserving}
}

// piiPatterns are applied in order; order determines PIIFound ordering.
// The credit-card pattern runs before the phone pattern so a 16-digit
// grouped number is not claimed as a phone match first.
var piiPatterns = []struct {
	category PIICategory
	re       *regexp.Regexp
}{
	{PIICreditCard, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIIEmail, regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)},
	{PIIPhone, regexp.MustCompile(`(\+?1[ .-]?)?\(?\d{3}\)?[ .-]?\d{3}[ .-]?\d{4}\b`)},
	{PIIAddress, regexp.MustCompile(`(?i)\b\d{1,5}\s+\w+(\s\w+)?\s+(st|street|ave|avenue|rd|road|blvd|boulevard|ln|lane|dr|drive|ct|court|way)\b`)},
}

var placeholders = map[PIICategory]string{
	PIIPhone:      "[PHONE]",
	PIIEmail:      "[EMAIL]",
	PIISSN:        "[SSN]",
	PIICreditCard: "[CARD]",
	PIIAddress:    "[ADDRESS]",
}

var spamKeywords = []string{
	"free", "winner", "claim", "prize", "click here", "limited time",
	"act now", "congratulations", "urgent", "no obligation",
}

var businessKeywords = []string{
	"meeting", "invoice", "order", "appointment", "confirm", "schedule",
	"delivery", "account", "payment", "receipt",
}

var personalKeywords = []string{
	"love", "dinner", "family", "birthday", "miss you", "see you",
	"thanks", "home", "tonight", "weekend",
}

// Small stopword sets for a best-effort language guess. The highest hit
// count wins; ties and zero hits leave Language empty.
var languageStopwords = map[string][]string{
	"en": {"the", "and", "you", "for", "are", "with", "this", "have"},
	"es": {"que", "los", "las", "por", "con", "para", "una", "esta"},
	"fr": {"les", "des", "est", "pour", "avec", "dans", "une", "vous"},
}

// ContentNormalizer sanitizes and classifies message content. Safe for
// concurrent use.
type ContentNormalizer struct {
	cfg ContentConfig
}

// NewContentNormalizer creates a normalizer with the given config.
func NewContentNormalizer(cfg ContentConfig) *ContentNormalizer {
	if !cfg.MaskMode.IsValid() {
		cfg.MaskMode = MaskLengthPreserving
	}
	return &ContentNormalizer{cfg: cfg}
}

// Normalize detects PII, produces a sanitized copy, and classifies the
// content. Empty content is valid and passes through untouched.
func (n *ContentNormalizer) Normalize(raw string) ContentResult {
	res := ContentResult{Sanitized: raw, Category: ContentGeneral, IsValid: true}
	if strings.TrimSpace(raw) == "" {
		res.Sanitized = ""
		return res
	}

	seen := make(map[PIICategory]bool)
	for _, p := range piiPatterns {
		if !p.re.MatchString(res.Sanitized) {
			continue
		}
		if !seen[p.category] {
			seen[p.category] = true
			res.PIIFound = append(res.PIIFound, p.category)
		}
		res.Sanitized = p.re.ReplaceAllStringFunc(res.Sanitized, func(match string) string {
			if n.cfg.MaskMode == MaskPlaceholder {
				return placeholders[p.category]
			}
			return maskPreservingLength(match)
		})
	}

	res.Category = classify(raw)
	res.Language = guessLanguage(raw)
	return res
}

// maskPreservingLength replaces every non-space character with '*'.
func maskPreservingLength(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r != ' ' {
			out[i] = '*'
		}
	}
	return string(out)
}

// classify scores keyword hits per category; spam outranks business
// outranks personal on ties, and zero hits mean general.
func classify(content string) ContentCategory {
	lower := strings.ToLower(content)
	counts := []struct {
		category ContentCategory
		keywords []string
	}{
		{ContentSpam, spamKeywords},
		{ContentBusiness, businessKeywords},
		{ContentPersonal, personalKeywords},
	}

	best := ContentGeneral
	bestHits := 0
	for _, c := range counts {
		hits := 0
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = c.category
		}
	}
	return best
}

// guessLanguage counts stopword hits per language.
func guessLanguage(content string) string {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return ""
	}
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[strings.Trim(w, ".,!?;:'\"")] = true
	}

	best := ""
	bestHits := 0
	for lang, stopwords := range languageStopwords {
		hits := 0
		for _, sw := range stopwords {
			if wordSet[sw] {
				hits++
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && lang < best) {
			bestHits = hits
			best = lang
		}
	}
	return best
}
