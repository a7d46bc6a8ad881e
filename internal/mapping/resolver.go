package mapping

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// maxSampleRows caps how many sample rows feed the scorer per field.
const maxSampleRows = 100

// Quality score blend: completeness dominates because a high-confidence
// mapping set that misses a required field is still unusable.
const (
	qualityWeightCompleteness = 0.6
	qualityWeightConfidence   = 0.4
)

// ResolveInput is everything the resolver needs for one file.
type ResolveInput struct {
	SourceFields []string
	Samples      []*types.RawRecord

	// CarrierHint and FormatHint come from the layout classifier or file
	// metadata and key the template lookup.
	CarrierHint string
	FormatHint  string

	// Suggested are classifier-proposed mappings with model confidence.
	// May be empty; the keyword heuristic covers unsuggested fields.
	Suggested []types.FieldMapping

	// ManualMappings, when present, win over everything else for their
	// target fields.
	ManualMappings []types.FieldMapping
}

// Resolution is the resolver's complete answer. The resolver never fails
// for unmappable input: an empty or partial mapping set with
// ValidationIssues set is a normal outcome, and the caller decides whether
// to require manual mapping.
type Resolution struct {
	Mappings []*types.FieldMapping `json:"mappings"`

	// QualityScore = 0.6*completeness + 0.4*mean(confidence), where
	// completeness is the fraction of required targets that are mapped.
	QualityScore float64 `json:"quality_score"`

	ValidationIssues []string `json:"validation_issues,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`

	// FromTemplate is true when a stored template contributed mappings.
	FromTemplate bool `json:"from_template"`
}

// MissingRequired returns the required target fields not covered by the
// resolved set.
func (r *Resolution) MissingRequired() []types.TargetField {
	covered := make(map[types.TargetField]bool, len(r.Mappings))
	for _, m := range r.Mappings {
		covered[m.TargetField] = true
	}
	var missing []types.TargetField
	for _, f := range types.RequiredFields {
		if !covered[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// Resolver combines template lookup, classifier suggestions, and the
// keyword heuristic into a final mapping set scored by the Scorer.
type Resolver struct {
	templates TemplateStore
	scorer    *Scorer
	logger    *zap.Logger
}

// NewResolver creates a resolver. A nil template store disables template
// lookup; a nil logger disables logging.
func NewResolver(templates TemplateStore, scorer *Scorer, logger *zap.Logger) *Resolver {
	if scorer == nil {
		scorer = NewScorer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{templates: templates, scorer: scorer, logger: logger}
}

// defaultDataType maps each canonical target to its expected value domain.
func defaultDataType(f types.TargetField) types.FieldDataType {
	switch f {
	case types.FieldTimestamp:
		return types.DataTypeDateTime
	case types.FieldNumber:
		return types.DataTypePhone
	case types.FieldDuration:
		return types.DataTypeDuration
	case types.FieldCost:
		return types.DataTypeDecimal
	default:
		return types.DataTypeString
	}
}

// Resolve produces the final mapping set for a file. At most one mapping
// per target field survives: the highest-confidence candidate wins.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) Resolution {
	res := Resolution{}

	if len(in.SourceFields) == 0 {
		res.ValidationIssues = append(res.ValidationIssues, "no source fields to map")
		res.Recommendations = append(res.Recommendations, "verify the extraction adapter produced records")
		return res
	}

	samples := r.collectSamples(in)

	// Candidate pool keyed by target field; best confidence wins.
	best := make(map[types.TargetField]*types.FieldMapping)
	consider := func(m types.FieldMapping) {
		cur, ok := best[m.TargetField]
		// Ties break on source field name so resolution stays
		// deterministic regardless of candidate arrival order.
		if !ok || m.Confidence > cur.Confidence ||
			(m.Confidence == cur.Confidence && m.SourceField < cur.SourceField) {
			mm := m
			best[m.TargetField] = &mm
		}
	}

	// (a) Template lookup.
	var tmpl *Template
	if r.templates != nil && in.CarrierHint != "" {
		t, err := r.templates.Lookup(ctx, in.CarrierHint, in.FormatHint)
		if err != nil {
			// Template store is best-effort; resolution continues without it.
			r.logger.Warn("template lookup failed", zap.String("carrier", in.CarrierHint), zap.Error(err))
			res.ValidationIssues = append(res.ValidationIssues, fmt.Sprintf("template lookup failed: %v", err))
		} else if t != nil {
			tmpl = t
		}
	}

	sourceSet := make(map[string]bool, len(in.SourceFields))
	for _, f := range in.SourceFields {
		sourceSet[f] = true
	}

	if tmpl != nil {
		for _, m := range tmpl.Mappings {
			if !sourceSet[m.SourceField] {
				continue // template from a slightly different layout
			}
			scored := m
			scored.Confidence = r.scorer.Score(ScoreInput{
				SourceField:           m.SourceField,
				TargetField:           m.TargetField,
				DataType:              m.DataType,
				SampleValues:          samples[m.SourceField],
				FromTemplate:          true,
				HistoricalSuccessRate: tmpl.SuccessRate,
			})
			scored.IsRequired = m.TargetField.IsRequired()
			scored.Reason = fmt.Sprintf("template %s/%s (used %d times)", tmpl.Carrier, tmpl.FormatType, tmpl.UsageCount)
			consider(scored)
			res.FromTemplate = true
		}
	}

	// (b) Classifier suggestions for fields the template missed, then the
	// keyword heuristic for everything still unmatched.
	for _, m := range in.Suggested {
		if !sourceSet[m.SourceField] {
			continue
		}
		dt := m.DataType
		if !dt.IsValid() {
			dt = defaultDataType(m.TargetField)
		}
		scored := m
		scored.DataType = dt
		scored.Confidence = r.scorer.Score(ScoreInput{
			SourceField:     m.SourceField,
			TargetField:     m.TargetField,
			DataType:        dt,
			SampleValues:    samples[m.SourceField],
			ModelConfidence: m.Confidence,
		})
		scored.IsRequired = m.TargetField.IsRequired()
		if scored.Reason == "" {
			scored.Reason = "classifier suggestion"
		}
		consider(scored)
	}

	for _, sourceField := range in.SourceFields {
		for target := range targetSynonyms {
			if nameSimilarity(sourceField, target) < 0.5 {
				continue
			}
			dt := defaultDataType(target)
			conf := r.scorer.Score(ScoreInput{
				SourceField:  sourceField,
				TargetField:  target,
				DataType:     dt,
				SampleValues: samples[sourceField],
			})
			consider(types.FieldMapping{
				SourceField: sourceField,
				TargetField: target,
				DataType:    dt,
				Confidence:  conf,
				IsRequired:  target.IsRequired(),
				Reason:      "keyword heuristic",
			})
		}
	}

	// Manual mappings override whatever was inferred.
	for _, m := range in.ManualMappings {
		mm := m
		if !mm.DataType.IsValid() {
			mm.DataType = defaultDataType(mm.TargetField)
		}
		mm.Confidence = 1.0
		mm.IsRequired = mm.TargetField.IsRequired()
		mm.Reason = "manual mapping"
		best[mm.TargetField] = &mm
	}

	// (d) Order: required first, then by confidence.
	for _, m := range best {
		res.Mappings = append(res.Mappings, m)
	}
	sort.Slice(res.Mappings, func(i, j int) bool {
		a, b := res.Mappings[i], res.Mappings[j]
		if a.IsRequired != b.IsRequired {
			return a.IsRequired
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.TargetField < b.TargetField
	})

	// (e) Quality score and advisory output.
	res.QualityScore = r.qualityScore(res.Mappings)
	for _, f := range res.MissingRequired() {
		res.ValidationIssues = append(res.ValidationIssues, fmt.Sprintf("required field %q is not mapped", f))
		res.Recommendations = append(res.Recommendations, fmt.Sprintf("provide a manual mapping for %q", f))
	}
	for _, m := range res.Mappings {
		if m.IsRequired && m.Confidence < 0.5 {
			res.ValidationIssues = append(res.ValidationIssues,
				fmt.Sprintf("low confidence (%.2f) for required field %q from %q", m.Confidence, m.TargetField, m.SourceField))
		}
	}

	return res
}

// qualityScore = 0.6*completeness + 0.4*mean(confidence).
func (r *Resolver) qualityScore(mappings []*types.FieldMapping) float64 {
	if len(mappings) == 0 {
		return 0
	}
	covered := make(map[types.TargetField]bool)
	sum := 0.0
	for _, m := range mappings {
		covered[m.TargetField] = true
		sum += m.Confidence
	}
	requiredCovered := 0
	for _, f := range types.RequiredFields {
		if covered[f] {
			requiredCovered++
		}
	}
	completeness := float64(requiredCovered) / float64(len(types.RequiredFields))
	meanConf := sum / float64(len(mappings))
	return qualityWeightCompleteness*completeness + qualityWeightConfidence*meanConf
}

// collectSamples gathers up to maxSampleRows raw values per source field.
func (r *Resolver) collectSamples(in ResolveInput) map[string][]string {
	out := make(map[string][]string, len(in.SourceFields))
	rows := in.Samples
	if len(rows) > maxSampleRows {
		rows = rows[:maxSampleRows]
	}
	for _, rec := range rows {
		for _, f := range in.SourceFields {
			if v := rec.GetString(f); v != "" {
				out[f] = append(out[f], v)
			}
		}
	}
	return out
}
