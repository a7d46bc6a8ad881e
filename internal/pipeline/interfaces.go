package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tollgrid/cdrpipe/internal/storage"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// ExtractionAdapter produces the raw records for one job from a source
// file. Called once per job; the pipeline never re-reads the source.
type ExtractionAdapter interface {
	Extract(ctx context.Context, path string) ([]*types.RawRecord, types.FileMetadata, error)
}

// Classification is a layout classifier's verdict on a sample of records.
type Classification struct {
	Format     string               `json:"format"`
	Carrier    string               `json:"carrier"`
	Confidence float64              `json:"confidence"`
	Suggested  []types.FieldMapping `json:"suggested,omitempty"`
}

// LayoutClassifier inspects sample records and proposes a carrier, format,
// and candidate field mappings. Best-effort: a classifier failure degrades
// the job to heuristic mapping, it never fails it.
type LayoutClassifier interface {
	Classify(ctx context.Context, samples []*types.RawRecord, filename string) (*Classification, error)
}

// JobStatusSink receives progress updates and stage-level errors as a job
// moves through the pipeline. Implementations must tolerate duplicate
// updates for the same stage.
type JobStatusSink interface {
	UpdateStatus(ctx context.Context, status *types.JobStatus) error
	AddError(ctx context.Context, jobID string, ve *types.ValidationError) error
}

// EventSink persists the job's output. Both inserts are expected to be
// idempotent upserts on the event's natural key so a re-run job converges
// instead of duplicating rows.
type EventSink interface {
	BulkInsertEvents(ctx context.Context, events []*types.CanonicalEvent) (int, error)
	BulkInsertContacts(ctx context.Context, summaries []*types.ContactSummary) error
}

// StoreSink adapts a storage.Store to the pipeline's sink interfaces.
type StoreSink struct {
	store  storage.Store
	logger *zap.Logger
}

// NewStoreSink wraps a store as both a JobStatusSink and an EventSink.
func NewStoreSink(store storage.Store, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// UpdateStatus implements JobStatusSink.
func (s *StoreSink) UpdateStatus(ctx context.Context, status *types.JobStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	return s.store.UpdateJobStatus(ctx, status)
}

// AddError implements JobStatusSink. Stage-level errors are durable in the
// job's result; here they are only surfaced to the log stream.
func (s *StoreSink) AddError(_ context.Context, jobID string, ve *types.ValidationError) error {
	s.logger.Warn("job error",
		zap.String("job_id", jobID),
		zap.String("category", string(ve.Category)),
		zap.String("severity", string(ve.Severity)),
		zap.String("message", ve.Message))
	return nil
}

// BulkInsertEvents implements EventSink.
func (s *StoreSink) BulkInsertEvents(ctx context.Context, events []*types.CanonicalEvent) (int, error) {
	return s.store.UpsertEvents(ctx, events)
}

// BulkInsertContacts implements EventSink.
func (s *StoreSink) BulkInsertContacts(ctx context.Context, summaries []*types.ContactSummary) error {
	return s.store.UpsertContactSummaries(ctx, summaries)
}
