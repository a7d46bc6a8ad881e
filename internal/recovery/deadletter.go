package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// DeadLetter is one item parked after exhausting recovery.
type DeadLetter struct {
	ID         string                 `json:"id"`
	JobID      string                 `json:"job_id"`
	ItemID     string                 `json:"item_id"`
	Item       map[string]any         `json:"item"`
	Error      *types.ValidationError `json:"error"`
	RetryCount int                    `json:"retry_count"`
	CreatedAt  time.Time              `json:"created_at"`
}

// DeadLetterStore is the durable backing for parked items.
type DeadLetterStore interface {
	Add(ctx context.Context, entry *DeadLetter) error
	List(ctx context.Context, jobID string, limit int) ([]*DeadLetter, error)
	Remove(ctx context.Context, id string) error
}

// DayStats aggregates dead letters for one calendar day (UTC).
type DayStats struct {
	Day        string                        `json:"day"` // YYYY-MM-DD
	Total      int                           `json:"total"`
	ByCategory map[types.ErrorCategory]int   `json:"by_category"`
	BySeverity map[types.Severity]int        `json:"by_severity"`
}

// DeadLetterQueue fronts a store with enqueue, bounded re-drain, and
// per-day analytics.
type DeadLetterQueue struct {
	store  DeadLetterStore
	logger *zap.Logger
	now    func() time.Time
}

// NewDeadLetterQueue creates a queue over the given store.
func NewDeadLetterQueue(store DeadLetterStore, logger *zap.Logger) *DeadLetterQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterQueue{store: store, logger: logger, now: time.Now}
}

// Enqueue parks an item with its classified error.
func (q *DeadLetterQueue) Enqueue(ctx context.Context, jobID string, item map[string]any, ve *types.ValidationError) error {
	entry := &DeadLetter{
		ID:         uuid.NewString(),
		JobID:      jobID,
		ItemID:     ve.Context.ItemID,
		Item:       item,
		Error:      ve,
		RetryCount: ve.Context.RetryCount,
		CreatedAt:  q.now().UTC(),
	}
	if err := q.store.Add(ctx, entry); err != nil {
		return fmt.Errorf("dead-letter enqueue: %w", err)
	}
	q.logger.Warn("item dead-lettered",
		zap.String("job_id", jobID),
		zap.String("item_id", entry.ItemID),
		zap.String("category", string(ve.Category)),
		zap.String("severity", string(ve.Severity)))
	return nil
}

// Redrain replays up to limit parked items for a job through processor.
// Successfully processed entries are removed from the store; failures stay
// parked. Returns the number redrained and the number that failed again.
func (q *DeadLetterQueue) Redrain(ctx context.Context, jobID string, limit int, processor func(context.Context, *DeadLetter) error) (int, int, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := q.store.List(ctx, jobID, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("dead-letter list: %w", err)
	}

	drained, failed := 0, 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return drained, failed, err
		}
		if err := processor(ctx, entry); err != nil {
			failed++
			q.logger.Warn("dead-letter redrain failed",
				zap.String("id", entry.ID),
				zap.String("item_id", entry.ItemID),
				zap.Error(err))
			continue
		}
		if err := q.store.Remove(ctx, entry.ID); err != nil {
			return drained, failed, fmt.Errorf("dead-letter remove %s: %w", entry.ID, err)
		}
		drained++
	}
	return drained, failed, nil
}

// Stats computes per-day category and severity counts for a job. An empty
// jobID aggregates across jobs.
func (q *DeadLetterQueue) Stats(ctx context.Context, jobID string) ([]*DayStats, error) {
	entries, err := q.store.List(ctx, jobID, 0)
	if err != nil {
		return nil, fmt.Errorf("dead-letter list: %w", err)
	}

	byDay := make(map[string]*DayStats)
	for _, entry := range entries {
		day := entry.CreatedAt.UTC().Format("2006-01-02")
		st, ok := byDay[day]
		if !ok {
			st = &DayStats{
				Day:        day,
				ByCategory: make(map[types.ErrorCategory]int),
				BySeverity: make(map[types.Severity]int),
			}
			byDay[day] = st
		}
		st.Total++
		st.ByCategory[entry.Error.Category]++
		st.BySeverity[entry.Error.Severity]++
	}

	out := make([]*DayStats, 0, len(byDay))
	for _, st := range byDay {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// MemoryDeadLetterStore is an in-memory store for tests and for jobs run
// without a database.
type MemoryDeadLetterStore struct {
	mu      sync.Mutex
	entries []*DeadLetter
}

// NewMemoryDeadLetterStore creates an empty in-memory store.
func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{}
}

// Add implements DeadLetterStore.
func (s *MemoryDeadLetterStore) Add(ctx context.Context, entry *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List implements DeadLetterStore. A limit of 0 means no limit; an empty
// jobID matches all jobs.
func (s *MemoryDeadLetterStore) List(ctx context.Context, jobID string, limit int) ([]*DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DeadLetter
	for _, e := range s.entries {
		if jobID != "" && e.JobID != jobID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Remove implements DeadLetterStore.
func (s *MemoryDeadLetterStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dead letter %s not found", id)
}
