package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// stage names recorded on duplicate groups and stats.
const (
	stageExact        = "exact"
	stageTimeBucketed = "time_bucketed"
	stageFuzzy        = "fuzzy"
	stageSemantic     = "semantic"
)

// Result is the outcome of running detection over one batch.
type Result struct {
	// Events are the surviving records in input order. Never larger than
	// the input.
	Events []*types.CanonicalEvent

	// Merges records every group collapse, for lineage reporting.
	Merges []*types.MergeResult

	Stats types.DuplicateStats
}

// Detector runs duplicate detection as a sequence of progressively more
// expensive stages. Each stage consumes the survivors of the previous one,
// so the working set only ever shrinks. The fast strategy runs the two
// key-based stages; comprehensive adds pairwise fuzzy matching and semantic
// content matching.
type Detector struct {
	cfg      Config
	keys     *KeyGenerator
	matcher  *FuzzyMatcher
	resolver *ConflictResolver
	logger   *zap.Logger
}

// NewDetector creates a detector. A nil logger disables logging.
func NewDetector(cfg Config, logger *zap.Logger) (*Detector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dedup config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:      cfg,
		keys:     NewKeyGenerator(cfg.TimeToleranceSecs),
		matcher:  NewFuzzyMatcher(cfg.FuzzyThreshold, time.Duration(cfg.MaxTimeSkewSecs)*time.Second),
		resolver: NewConflictResolver(),
		logger:   logger,
	}, nil
}

// Detect runs the configured stages over events and returns the survivors.
// Input order is preserved: a merged group takes the position of its
// earliest member. Detection is idempotent: running the output through
// Detect again yields the same events.
func (d *Detector) Detect(ctx context.Context, events []*types.CanonicalEvent) (*Result, error) {
	res := &Result{
		Events: events,
		Stats:  types.DuplicateStats{InputEvents: len(events)},
	}
	if len(events) < 2 {
		res.Stats.OutputEvents = len(events)
		return res, nil
	}

	stages := []struct {
		name string
		run  func([]*types.CanonicalEvent, *Result) ([]*types.CanonicalEvent, error)
	}{
		{stageExact, d.exactStage},
		{stageTimeBucketed, d.timeBucketedStage},
		{stageFuzzy, d.fuzzyStage},
		{stageSemantic, d.semanticStage},
	}
	if d.cfg.Strategy == types.DedupFast {
		stages = stages[:2]
	}

	survivors := events
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dedup canceled during %s stage: %w", st.name, err)
		}
		before := len(survivors)
		var err error
		survivors, err = st.run(survivors, res)
		if err != nil {
			return nil, fmt.Errorf("%s stage: %w", st.name, err)
		}
		if len(survivors) > before {
			return nil, fmt.Errorf("%s stage grew the working set (%d -> %d)", st.name, before, len(survivors))
		}
		if removed := before - len(survivors); removed > 0 {
			d.logger.Debug("dedup stage complete",
				zap.String("stage", st.name),
				zap.Int("removed", removed),
				zap.Int("remaining", len(survivors)))
		}
	}

	res.Events = survivors
	res.Stats.OutputEvents = len(survivors)
	return res, nil
}

// exactStage groups by the standard composite key. Members of a group are
// identical on number, timestamp, type, and direction, so similarity is 1.0.
func (d *Detector) exactStage(events []*types.CanonicalEvent, res *Result) ([]*types.CanonicalEvent, error) {
	return d.keyStage(events, res, types.StrategyStandard, stageExact, 1.0, &res.Stats.ExactDuplicates)
}

// timeBucketedStage groups events by (number, type), sorts each group by
// time, and sweeps left to right, clustering neighbors within the tolerance
// window. A single sweep collapses a run of near-simultaneous events in one
// pass instead of comparing all pairs, and catches pairs that straddle a
// fixed bucket boundary.
func (d *Detector) timeBucketedStage(events []*types.CanonicalEvent, res *Result) ([]*types.CanonicalEvent, error) {
	byIdentity := make(map[string][]int, len(events))
	order := make([]string, 0, len(events))
	for i, ev := range events {
		k := ev.Number + "|" + string(ev.Type)
		if _, seen := byIdentity[k]; !seen {
			order = append(order, k)
		}
		byIdentity[k] = append(byIdentity[k], i)
	}

	tolerance := time.Duration(d.cfg.TimeToleranceSecs) * time.Second
	var groups [][]int
	for _, k := range order {
		idxs := byIdentity[k]
		if len(idxs) < 2 {
			continue
		}
		sort.SliceStable(idxs, func(a, b int) bool {
			return events[idxs[a]].Timestamp.Before(events[idxs[b]].Timestamp)
		})

		cluster := []int{idxs[0]}
		for _, i := range idxs[1:] {
			prev := events[cluster[len(cluster)-1]]
			if events[i].Timestamp.Sub(prev.Timestamp) <= tolerance {
				cluster = append(cluster, i)
				continue
			}
			if len(cluster) >= 2 {
				groups = append(groups, sortedCopy(cluster))
			}
			cluster = []int{i}
		}
		if len(cluster) >= 2 {
			groups = append(groups, sortedCopy(cluster))
		}
	}

	return d.collapse(events, res, groups, stageTimeBucketed, 0.95, &res.Stats.TimeBucketed)
}

// sortedCopy returns the cluster's indexes in input order, so merged groups
// take their earliest member's position.
func sortedCopy(idxs []int) []int {
	out := make([]int, len(idxs))
	copy(out, idxs)
	sort.Ints(out)
	return out
}

// keyStage collapses events sharing a composite key under the given
// strategy. Groups form in input order, so merges are deterministic.
func (d *Detector) keyStage(events []*types.CanonicalEvent, res *Result, strategy types.KeyStrategy, stage string, similarity float64, removed *int) ([]*types.CanonicalEvent, error) {
	byKey := make(map[string][]int, len(events))
	order := make([]string, 0, len(events))
	for i, ev := range events {
		key, err := d.keys.Generate(ev, strategy)
		if err != nil {
			return nil, err
		}
		if _, seen := byKey[key.Full]; !seen {
			order = append(order, key.Full)
		}
		byKey[key.Full] = append(byKey[key.Full], i)
	}

	return d.collapse(events, res, groupsFromIndex(byKey, order), stage, similarity, removed)
}

// fuzzyStage blocks events by number suffix and pairwise-compares within
// each block using the weighted similarity matcher. Matched pairs are
// clustered with union-find so transitive matches merge as one group.
func (d *Detector) fuzzyStage(events []*types.CanonicalEvent, res *Result) ([]*types.CanonicalEvent, error) {
	blocks := make(map[string][]int, len(events))
	order := make([]string, 0, len(events))
	for i, ev := range events {
		suffix := digitSuffix(ev.Number, 7)
		if _, seen := blocks[suffix]; !seen {
			order = append(order, suffix)
		}
		blocks[suffix] = append(blocks[suffix], i)
	}

	uf := newUnionFind(len(events))
	sims := make(map[[2]int]float64)
	for _, suffix := range order {
		idxs := blocks[suffix]
		if len(idxs) < 2 || len(idxs) > d.cfg.MaxBlockSize {
			continue
		}
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				res.Stats.ComparisonsMade++
				sim, ok := d.matcher.IsMatch(events[idxs[a]], events[idxs[b]])
				if ok {
					uf.union(idxs[a], idxs[b])
					sims[[2]int{idxs[a], idxs[b]}] = sim
				}
			}
		}
	}

	return d.collapseClusters(events, res, uf, sims, stageFuzzy, &res.Stats.FuzzyMatched)
}

// semanticStage groups events by content fingerprint within the same number
// and type, then confirms each pair with content similarity above the
// semantic threshold. Only applies to events that carry content. Blocking
// stays within (number, type) on purpose: the same notification text
// arriving from two different senders is two real events, not a duplicate,
// so cross-number fingerprint collisions are never compared.
func (d *Detector) semanticStage(events []*types.CanonicalEvent, res *Result) ([]*types.CanonicalEvent, error) {
	blocks := make(map[string][]int, len(events))
	order := make([]string, 0, len(events))
	for i, ev := range events {
		if ev.Content == "" {
			continue
		}
		key, err := d.keys.Generate(ev, types.StrategyContentBased)
		if err != nil {
			return nil, err
		}
		if _, seen := blocks[key.Full]; !seen {
			order = append(order, key.Full)
		}
		blocks[key.Full] = append(blocks[key.Full], i)
	}

	uf := newUnionFind(len(events))
	sims := make(map[[2]int]float64)
	for _, k := range order {
		idxs := blocks[k]
		if len(idxs) < 2 || len(idxs) > d.cfg.MaxBlockSize {
			continue
		}
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				res.Stats.ComparisonsMade++
				sim := ContentSimilarity(events[idxs[a]].Content, events[idxs[b]].Content)
				if sim > d.cfg.SemanticThreshold {
					uf.union(idxs[a], idxs[b])
					sims[[2]int{idxs[a], idxs[b]}] = sim
				}
			}
		}
	}

	return d.collapseClusters(events, res, uf, sims, stageSemantic, &res.Stats.SemanticMatched)
}

// groupsFromIndex converts a key index into groups of 2+ members, preserving
// first-occurrence order of keys.
func groupsFromIndex(byKey map[string][]int, order []string) [][]int {
	var groups [][]int
	for _, k := range order {
		if idxs := byKey[k]; len(idxs) >= 2 {
			groups = append(groups, idxs)
		}
	}
	return groups
}

// collapseClusters extracts groups of 2+ from a union-find structure and
// collapses them. Cluster similarity is the minimum matched-pair similarity
// observed inside the cluster.
func (d *Detector) collapseClusters(events []*types.CanonicalEvent, res *Result, uf *unionFind, sims map[[2]int]float64, stage string, removed *int) ([]*types.CanonicalEvent, error) {
	byRoot := make(map[int][]int)
	for i := range events {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}
	roots := make([]int, 0, len(byRoot))
	for root, members := range byRoot {
		if len(members) >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	groups := make([][]int, 0, len(roots))
	groupSims := make([]float64, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		sort.Ints(members)
		minSim := 1.0
		for pair, sim := range sims {
			if uf.find(pair[0]) == root && sim < minSim {
				minSim = sim
			}
		}
		groups = append(groups, members)
		groupSims = append(groupSims, minSim)
	}

	return d.collapseWithSims(events, res, groups, groupSims, stage, removed)
}

func (d *Detector) collapse(events []*types.CanonicalEvent, res *Result, groups [][]int, stage string, similarity float64, removed *int) ([]*types.CanonicalEvent, error) {
	sims := make([]float64, len(groups))
	for i := range sims {
		sims[i] = similarity
	}
	return d.collapseWithSims(events, res, groups, sims, stage, removed)
}

// collapseWithSims merges each group and rebuilds the survivor slice in
// input order, with each merged record at its earliest member's position.
func (d *Detector) collapseWithSims(events []*types.CanonicalEvent, res *Result, groups [][]int, sims []float64, stage string, removed *int) ([]*types.CanonicalEvent, error) {
	if len(groups) == 0 {
		return events, nil
	}

	replaceAt := make(map[int]*types.CanonicalEvent, len(groups))
	drop := make(map[int]bool)
	for gi, idxs := range groups {
		group := &types.DuplicateGroup{
			Records:    make([]*types.CanonicalEvent, 0, len(idxs)),
			Similarity: sims[gi],
			Stage:      stage,
		}
		for _, i := range idxs {
			group.Records = append(group.Records, events[i])
		}
		merge, err := d.resolver.Merge(group)
		if err != nil {
			return nil, err
		}
		replaceAt[idxs[0]] = merge.MergedRecord
		for _, i := range idxs[1:] {
			drop[i] = true
		}
		res.Merges = append(res.Merges, merge)
		res.Stats.GroupsMerged++
		*removed += len(idxs) - 1
	}

	out := make([]*types.CanonicalEvent, 0, len(events)-len(drop))
	for i, ev := range events {
		if drop[i] {
			continue
		}
		if m, ok := replaceAt[i]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// unionFind is a standard disjoint-set structure with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Smaller root wins so cluster roots are stable across union order.
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
