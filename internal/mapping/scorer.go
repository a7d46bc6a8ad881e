package mapping

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// Signal weights for the confidence blend. Fixed by contract: changing
// them shifts every historical template's effective ranking.
const (
	weightModel      = 0.30
	weightPattern    = 0.25
	weightNameMatch  = 0.20
	weightTemplate   = 0.15
	weightHistorical = 0.10
)

// Penalties subtracted after blending.
const (
	penaltyShortName    = 0.10 // source field name under 3 characters
	penaltyGenericName  = 0.05 // "field1", "column_a" style names
	penaltyTypeConflict = 0.20 // sample values conflict with target type
)

// ScoreInput carries the evidence for one candidate source->target binding.
type ScoreInput struct {
	SourceField string
	TargetField types.TargetField
	DataType    types.FieldDataType

	// SampleValues are raw values observed for the source field (at most
	// the resolver's sample cap).
	SampleValues []string

	// ModelConfidence is the layout classifier's score for this binding,
	// or 0 when no classifier suggestion exists.
	ModelConfidence float64

	// FromTemplate is true when the binding came from a stored template.
	FromTemplate bool

	// HistoricalSuccessRate is the template's recorded success rate, or 0.
	HistoricalSuccessRate float64
}

// Scorer blends five signals into a [0,1] confidence for a candidate field
// mapping. Stateless and safe for concurrent use.
type Scorer struct{}

// NewScorer creates a confidence scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the blended confidence for a candidate mapping.
func (s *Scorer) Score(in ScoreInput) float64 {
	patternRate := patternMatchRate(in.DataType, in.SampleValues)

	templateBonus := 0.0
	if in.FromTemplate {
		templateBonus = 1.0
	}

	score := weightModel*in.ModelConfidence +
		weightPattern*patternRate +
		weightNameMatch*nameSimilarity(in.SourceField, in.TargetField) +
		weightTemplate*templateBonus +
		weightHistorical*in.HistoricalSuccessRate

	score -= namePenalty(in.SourceField)
	if len(in.SampleValues) > 0 && patternRate < 0.2 {
		// Samples actively disagree with the claimed type.
		score -= penaltyTypeConflict
	}

	return clamp(score)
}

// typeProbes are cheap shape checks used to estimate how well observed
// sample values fit a claimed data type.
var typeProbes = map[types.FieldDataType]*regexp.Regexp{
	types.DataTypePhone:    regexp.MustCompile(`^[+(]?[\d() .\-]{7,20}$`),
	types.DataTypeDateTime: regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}|^\d{9,13}$|\d{1,2}:\d{2}`),
	types.DataTypeDuration: regexp.MustCompile(`^\d+(:\d{2}){0,2}$|^\d+(\.\d+)?\s*[smh]?$`),
	types.DataTypeDecimal:  regexp.MustCompile(`^-?\$?\d+(\.\d+)?$`),
}

// patternMatchRate returns the fraction of non-empty samples matching the
// type probe. String targets accept anything, and no samples means no
// signal either way (0.5).
func patternMatchRate(dt types.FieldDataType, samples []string) float64 {
	probe, ok := typeProbes[dt]
	if !ok {
		return 1.0
	}

	total := 0
	matched := 0
	for _, v := range samples {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		total++
		if probe.MatchString(v) {
			matched++
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(matched) / float64(total)
}

// targetSynonyms seed the name-similarity signal. Keys are canonical
// fields; values are tokens commonly seen in carrier export headers.
var targetSynonyms = map[types.TargetField][]string{
	types.FieldTimestamp: {"ts", "date", "time", "timestamp", "datetime", "when", "start"},
	types.FieldNumber:    {"number", "phone", "msisdn", "caller", "callee", "dialed", "to", "from", "contact"},
	types.FieldType:      {"type", "category", "kind", "event", "service", "usage"},
	types.FieldDirection: {"direction", "inbound", "outbound", "in/out", "io", "way"},
	types.FieldDuration:  {"duration", "seconds", "secs", "length", "minutes", "mins", "elapsed"},
	types.FieldContent:   {"content", "message", "text", "body", "sms"},
	types.FieldCarrier:   {"carrier", "operator", "network", "provider"},
	types.FieldCost:      {"cost", "charge", "price", "amount", "fee", "rate"},
	types.FieldLocation:  {"location", "city", "tower", "cell", "area", "region", "place"},
}

// nameSimilarity scores how well a source field name resembles the target.
// Exact token hits score 1.0; otherwise the best normalized edit-distance
// similarity against the synonym list is used.
func nameSimilarity(sourceField string, target types.TargetField) float64 {
	tokens := tokenize(sourceField)
	if len(tokens) == 0 {
		return 0
	}

	best := 0.0
	for _, syn := range targetSynonyms[target] {
		for _, tok := range tokens {
			if tok == syn {
				return 1.0
			}
			sim := editSimilarity(tok, syn)
			if sim > best {
				best = sim
			}
		}
	}
	return best
}

// editSimilarity converts Levenshtein distance to a [0,1] similarity.
func editSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	d := levenshtein.ComputeDistance(a, b)
	sim := 1.0 - float64(d)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

var genericNamePattern = regexp.MustCompile(`^(field|column|col|f|c|unnamed)[\s_]*\d*$`)

// namePenalty penalizes field names that carry little semantic signal.
func namePenalty(sourceField string) float64 {
	name := strings.ToLower(strings.TrimSpace(sourceField))
	if len(name) < 3 {
		return penaltyShortName
	}
	if genericNamePattern.MatchString(name) {
		return penaltyGenericName
	}
	return 0
}

// tokenize splits a header name on whitespace, underscores, dashes, and
// camelCase boundaries, lowercasing the result.
func tokenize(name string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	prevLower := false
	for _, r := range name {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '.' || r == '/':
			flush()
		case r >= 'A' && r <= 'Z' && prevLower:
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
		prevLower = r >= 'a' && r <= 'z'
	}
	flush()
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
