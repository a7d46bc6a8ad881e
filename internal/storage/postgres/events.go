package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tollgrid/cdrpipe/internal/types"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// UpsertEvents writes canonical events idempotently, batched over one
// connection. Conflicts on the natural key update the row in place.
func (p *PostgresStore) UpsertEvents(ctx context.Context, events []*types.CanonicalEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, ev := range events {
		var metadata []byte
		if ev.Metadata != nil {
			b, err := json.Marshal(ev.Metadata)
			if err != nil {
				return 0, fmt.Errorf("marshal metadata for %s: %w", ev.ID, err)
			}
			metadata = b
		}
		batch.Queue(`
			INSERT INTO events (id, user_id, number, ts, type, direction, duration, content, carrier, metadata, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (user_id, number, ts, type, direction) DO UPDATE SET
				duration = EXCLUDED.duration, content = EXCLUDED.content,
				carrier = EXCLUDED.carrier, metadata = EXCLUDED.metadata,
				updated_at = EXCLUDED.updated_at`,
			ev.ID, ev.UserID, ev.Number, ev.Timestamp.UTC(), string(ev.Type), string(ev.Direction),
			ev.Duration, ev.Content, ev.Carrier, metadata, now)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range events {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert event %s: %w", events[i].ID, err)
		}
	}
	return len(events), nil
}

// GetEventsByUser returns a user's events, newest first. A limit of 0
// means no limit.
func (p *PostgresStore) GetEventsByUser(ctx context.Context, userID string, limit int) ([]*types.CanonicalEvent, error) {
	query := `SELECT id, user_id, number, ts, type, direction, duration,
		COALESCE(content, ''), COALESCE(carrier, ''), metadata
		FROM events WHERE user_id = $1 ORDER BY ts DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*types.CanonicalEvent
	for rows.Next() {
		var ev types.CanonicalEvent
		var eventType, direction string
		var metadata []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Number, &ev.Timestamp, &eventType,
			&direction, &ev.Duration, &ev.Content, &ev.Carrier, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = types.EventType(eventType)
		ev.Direction = types.Direction(direction)
		ev.Timestamp = ev.Timestamp.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", ev.ID, err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// UpsertContactSummaries merges per-number aggregates.
func (p *PostgresStore) UpsertContactSummaries(ctx context.Context, summaries []*types.ContactSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, cs := range summaries {
		batch.Queue(`
			INSERT INTO contact_summaries (user_id, number, event_count, total_duration, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, number) DO UPDATE SET
				event_count    = contact_summaries.event_count + EXCLUDED.event_count,
				total_duration = contact_summaries.total_duration + EXCLUDED.total_duration,
				first_seen     = LEAST(contact_summaries.first_seen, EXCLUDED.first_seen),
				last_seen      = GREATEST(contact_summaries.last_seen, EXCLUDED.last_seen)`,
			cs.UserID, cs.Number, cs.EventCount, cs.TotalDuration, cs.FirstSeen.UTC(), cs.LastSeen.UTC())
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range summaries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert summary %s/%s: %w", summaries[i].UserID, summaries[i].Number, err)
		}
	}
	return nil
}

// UpdateJobStatus writes the latest progress for a job.
func (p *PostgresStore) UpdateJobStatus(ctx context.Context, status *types.JobStatus) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO job_status (job_id, user_id, stage, progress, message, processed_rows, total_rows, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			stage = EXCLUDED.stage, progress = EXCLUDED.progress,
			message = EXCLUDED.message, processed_rows = EXCLUDED.processed_rows,
			total_rows = EXCLUDED.total_rows, updated_at = EXCLUDED.updated_at`,
		status.JobID, status.UserID, string(status.Stage), status.Progress,
		status.Message, status.ProcessedRows, status.TotalRows, status.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// GetJobStatus returns the latest status for a job, or nil when unknown.
func (p *PostgresStore) GetJobStatus(ctx context.Context, jobID string) (*types.JobStatus, error) {
	var st types.JobStatus
	var stage string
	err := p.pool.QueryRow(ctx, `
		SELECT job_id, user_id, stage, progress, COALESCE(message, ''), processed_rows, total_rows, updated_at
		FROM job_status WHERE job_id = $1`, jobID).
		Scan(&st.JobID, &st.UserID, &stage, &st.Progress, &st.Message,
			&st.ProcessedRows, &st.TotalRows, &st.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	st.Stage = types.Stage(stage)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}
