package mapping

import (
	"context"
	"sync"
	"time"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// Template stores a historically-successful mapping set for one
// (carrier, format_type) pair.
type Template struct {
	Carrier     string               `json:"carrier"`
	FormatType  string               `json:"format_type"`
	Mappings    []types.FieldMapping `json:"mappings"`
	UsageCount  int                  `json:"usage_count"`
	SuccessRate float64              `json:"success_rate"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// TemplateStore persists mapping templates across jobs. Implementations
// must be safe for concurrent use; the sqlite backend in internal/storage
// is the durable one, and MemoryTemplateStore backs tests and cache-less
// deployments.
type TemplateStore interface {
	// Lookup returns the template for a (carrier, format) pair, or nil
	// when none is stored.
	Lookup(ctx context.Context, carrier, formatType string) (*Template, error)

	// RecordOutcome updates a template's usage statistics after a job,
	// storing the mapping set on success so future jobs can reuse it.
	RecordOutcome(ctx context.Context, carrier, formatType string, mappings []types.FieldMapping, success bool) error
}

// MemoryTemplateStore is an in-memory TemplateStore.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewMemoryTemplateStore creates an empty in-memory store.
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]*Template)}
}

func templateKey(carrier, formatType string) string {
	return carrier + "\x00" + formatType
}

// Lookup implements TemplateStore.
func (s *MemoryTemplateStore) Lookup(_ context.Context, carrier, formatType string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[templateKey(carrier, formatType)]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state.
	out := *t
	out.Mappings = append([]types.FieldMapping(nil), t.Mappings...)
	return &out, nil
}

// RecordOutcome implements TemplateStore. The success rate is a running
// average over all recorded outcomes.
func (s *MemoryTemplateStore) RecordOutcome(_ context.Context, carrier, formatType string, mappings []types.FieldMapping, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := templateKey(carrier, formatType)
	t, ok := s.templates[key]
	if !ok {
		t = &Template{Carrier: carrier, FormatType: formatType}
		s.templates[key] = t
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	t.SuccessRate = (t.SuccessRate*float64(t.UsageCount) + outcome) / float64(t.UsageCount+1)
	t.UsageCount++
	t.UpdatedAt = time.Now()
	if success && len(mappings) > 0 {
		t.Mappings = append([]types.FieldMapping(nil), mappings...)
	}
	return nil
}
