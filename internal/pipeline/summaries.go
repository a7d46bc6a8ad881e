package pipeline

import (
	"sort"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// BuildContactSummaries aggregates one job's events per contact number.
// Output is ordered by number so bulk upserts are deterministic.
func BuildContactSummaries(userID string, events []*types.CanonicalEvent) []*types.ContactSummary {
	byNumber := make(map[string]*types.ContactSummary)
	for _, ev := range events {
		s, ok := byNumber[ev.Number]
		if !ok {
			s = &types.ContactSummary{
				UserID:    userID,
				Number:    ev.Number,
				FirstSeen: ev.Timestamp,
				LastSeen:  ev.Timestamp,
			}
			byNumber[ev.Number] = s
		}
		s.EventCount++
		s.TotalDuration += ev.Duration
		if ev.Timestamp.Before(s.FirstSeen) {
			s.FirstSeen = ev.Timestamp
		}
		if ev.Timestamp.After(s.LastSeen) {
			s.LastSeen = ev.Timestamp
		}
	}

	out := make([]*types.ContactSummary, 0, len(byNumber))
	for _, s := range byNumber {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
