package dedup

import (
	"fmt"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// ConflictStrategy names a per-field rule for resolving disagreements between
// members of a duplicate group.
type ConflictStrategy string

const (
	KeepOldest         ConflictStrategy = "keep_oldest"
	KeepNewest         ConflictStrategy = "keep_newest"
	KeepLongest        ConflictStrategy = "keep_longest"
	KeepMostComplete   ConflictStrategy = "keep_most_complete"
	WeightedPreference ConflictStrategy = "weighted_preference"
)

// fieldStrategies maps each canonical field to its resolution rule. Fields
// not listed fall back to keep_newest.
var fieldStrategies = map[types.TargetField]ConflictStrategy{
	types.FieldTimestamp: KeepOldest,
	types.FieldNumber:    KeepMostComplete,
	types.FieldDuration:  KeepLongest,
	types.FieldContent:   KeepLongest,
	types.FieldType:      WeightedPreference,
	types.FieldDirection: WeightedPreference,
}

// typePreference ranks event types for weighted_preference resolution.
// Richer types win: an MMS record carries strictly more information than the
// SMS record another export reduced it to.
var typePreference = map[types.EventType]int{
	types.EventMMS:       5,
	types.EventSMS:       4,
	types.EventCall:      3,
	types.EventVoicemail: 2,
	types.EventData:      1,
}

// directionPreference ranks directions: a concrete direction beats missed,
// which some carriers report for any unanswered leg.
var directionPreference = map[types.Direction]int{
	types.DirectionOutbound: 3,
	types.DirectionInbound:  2,
	types.DirectionMissed:   1,
}

// ConflictResolver collapses duplicate groups into single merged records
// using per-field resolution strategies. Stateless and safe for concurrent
// use.
type ConflictResolver struct{}

// NewConflictResolver creates a resolver.
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Merge collapses a duplicate group into one record. The merged record is a
// new event; group members are not mutated. Resolution is deterministic:
// ties within a strategy break by record position in the group, and group
// order itself is canonical (detection emits groups sorted by event ID).
func (r *ConflictResolver) Merge(group *types.DuplicateGroup) (*types.MergeResult, error) {
	if err := group.Validate(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	records := group.Records
	merged := records[0].Clone()
	lineage := make(map[string]string, 6)
	conflicts := 0

	// Timestamp: keep_oldest.
	tsIdx, conflicted := r.resolveTimestamp(records)
	if conflicted {
		conflicts++
	}
	merged.Timestamp = records[tsIdx].Timestamp
	lineage[string(types.FieldTimestamp)] = records[tsIdx].ID

	// Number: keep_most_complete (most digits wins).
	numIdx, conflicted := r.resolveMostComplete(records, func(e *types.CanonicalEvent) string { return e.Number })
	if conflicted {
		conflicts++
	}
	merged.Number = records[numIdx].Number
	lineage[string(types.FieldNumber)] = records[numIdx].ID

	// Duration: keep_longest.
	durIdx, conflicted := r.resolveLongestDuration(records)
	if conflicted {
		conflicts++
	}
	merged.Duration = records[durIdx].Duration
	lineage[string(types.FieldDuration)] = records[durIdx].ID

	// Content: keep_longest.
	contentIdx, conflicted := r.resolveMostComplete(records, func(e *types.CanonicalEvent) string { return e.Content })
	if conflicted {
		conflicts++
	}
	merged.Content = records[contentIdx].Content
	lineage[string(types.FieldContent)] = records[contentIdx].ID

	// Type and direction: weighted_preference over static rank tables.
	typeIdx, conflicted := r.resolvePreferred(records,
		func(e *types.CanonicalEvent) int { return typePreference[e.Type] })
	if conflicted {
		conflicts++
	}
	merged.Type = records[typeIdx].Type
	lineage[string(types.FieldType)] = records[typeIdx].ID

	dirIdx, conflicted := r.resolvePreferred(records,
		func(e *types.CanonicalEvent) int { return directionPreference[e.Direction] })
	if conflicted {
		conflicts++
	}
	merged.Direction = records[dirIdx].Direction
	lineage[string(types.FieldDirection)] = records[dirIdx].ID

	// Carrier has no strategy of its own: keep_newest.
	carrierIdx, conflicted := r.resolveNewest(records, func(e *types.CanonicalEvent) string { return e.Carrier })
	if conflicted {
		conflicts++
	}
	merged.Carrier = records[carrierIdx].Carrier
	lineage[string(types.FieldCarrier)] = records[carrierIdx].ID

	// Provenance from every member survives; later members win key clashes
	// only for keys the surviving record did not already set.
	for _, rec := range records[1:] {
		for k, v := range rec.Metadata {
			if merged.Metadata == nil {
				merged.Metadata = make(map[string]string)
			}
			if _, ok := merged.Metadata[k]; !ok {
				merged.Metadata[k] = v
			}
		}
	}

	return &types.MergeResult{
		MergedRecord:      merged,
		SourceRecords:     records,
		ConflictsResolved: conflicts,
		QualityScore:      mergeQuality(group, conflicts, merged),
		DataLineage:       lineage,
	}, nil
}

// resolveTimestamp returns the index of the oldest timestamp and whether the
// group actually disagreed.
func (r *ConflictResolver) resolveTimestamp(records []*types.CanonicalEvent) (int, bool) {
	best := 0
	conflicted := false
	for i := 1; i < len(records); i++ {
		if !records[i].Timestamp.Equal(records[best].Timestamp) {
			conflicted = true
		}
		if records[i].Timestamp.Before(records[best].Timestamp) {
			best = i
		}
	}
	return best, conflicted
}

// resolveMostComplete keeps the longest non-empty value; earlier record wins
// ties.
func (r *ConflictResolver) resolveMostComplete(records []*types.CanonicalEvent, get func(*types.CanonicalEvent) string) (int, bool) {
	best := 0
	conflicted := false
	for i := 1; i < len(records); i++ {
		if get(records[i]) != get(records[best]) {
			conflicted = true
		}
		if len(get(records[i])) > len(get(records[best])) {
			best = i
		}
	}
	return best, conflicted
}

func (r *ConflictResolver) resolveLongestDuration(records []*types.CanonicalEvent) (int, bool) {
	best := 0
	conflicted := false
	for i := 1; i < len(records); i++ {
		if records[i].Duration != records[best].Duration {
			conflicted = true
		}
		if records[i].Duration > records[best].Duration {
			best = i
		}
	}
	return best, conflicted
}

// resolvePreferred keeps the highest-ranked value; earlier record wins ties.
func (r *ConflictResolver) resolvePreferred(records []*types.CanonicalEvent, rank func(*types.CanonicalEvent) int) (int, bool) {
	best := 0
	conflicted := false
	for i := 1; i < len(records); i++ {
		if rank(records[i]) != rank(records[best]) {
			conflicted = true
		}
		if rank(records[i]) > rank(records[best]) {
			best = i
		}
	}
	return best, conflicted
}

// resolveNewest keeps the value from the record with the latest timestamp
// that has a non-empty value.
func (r *ConflictResolver) resolveNewest(records []*types.CanonicalEvent, get func(*types.CanonicalEvent) string) (int, bool) {
	best := -1
	conflicted := false
	var firstSeen string
	seenAny := false
	for i, rec := range records {
		v := get(rec)
		if v == "" {
			continue
		}
		if !seenAny {
			firstSeen = v
			seenAny = true
		} else if v != firstSeen {
			conflicted = true
		}
		if best < 0 || rec.Timestamp.After(records[best].Timestamp) {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, conflicted
}

// Merge-quality scoring terms.
const (
	// resolvedConflictBonus credits each conflict the resolver settled:
	// a settled conflict recovered data a single source record lacked.
	resolvedConflictBonus = 0.02

	// overConflictedPenalty applies once when conflicts exceed half of the
	// resolvable fields; a group disagreeing that widely is a weak merge
	// whatever its detection similarity.
	overConflictedPenalty = 0.15

	// completenessBonusMax scales with the fraction of the merged record's
	// fields that are populated.
	completenessBonusMax = 0.05

	// resolvableFields counts the fields the resolver settles: ts, number,
	// duration, content, type, direction, carrier.
	resolvableFields = 7
)

// mergeQuality scores a merge in [0,1]: the group's detection similarity,
// plus a bonus per resolved conflict, minus a penalty when conflicts exceed
// half the resolvable fields, plus a completeness bonus for the merged
// record.
func mergeQuality(group *types.DuplicateGroup, conflicts int, merged *types.CanonicalEvent) float64 {
	score := group.Similarity + resolvedConflictBonus*float64(conflicts)
	if conflicts*2 > resolvableFields {
		score -= overConflictedPenalty
	}
	score += completenessBonusMax * completeness(merged)
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}

// completeness returns the populated fraction of the merged record's
// resolvable fields.
func completeness(ev *types.CanonicalEvent) float64 {
	populated := 0
	if !ev.Timestamp.IsZero() {
		populated++
	}
	if ev.Number != "" {
		populated++
	}
	if ev.Duration > 0 {
		populated++
	}
	if ev.Content != "" {
		populated++
	}
	if ev.Type != "" {
		populated++
	}
	if ev.Direction != "" {
		populated++
	}
	if ev.Carrier != "" {
		populated++
	}
	return float64(populated) / float64(resolvableFields)
}
