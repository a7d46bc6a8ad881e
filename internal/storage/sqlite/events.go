package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// UpsertEvents writes canonical events idempotently. Conflicts on the
// natural key (user, number, ts, type, direction) update the row in place,
// so re-running a job converges on the same state. Returns the number of
// rows written.
func (s *SQLiteStore) UpsertEvents(ctx context.Context, events []*types.CanonicalEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin event upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, user_id, number, ts, type, direction, duration, content, carrier, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, number, ts, type, direction) DO UPDATE SET
			duration   = excluded.duration,
			content    = excluded.content,
			carrier    = excluded.carrier,
			metadata   = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare event upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	written := 0
	for _, ev := range events {
		var metadata []byte
		if ev.Metadata != nil {
			metadata, err = json.Marshal(ev.Metadata)
			if err != nil {
				return written, fmt.Errorf("marshal metadata for %s: %w", ev.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.UserID, ev.Number, ev.Timestamp.UTC(), string(ev.Type), string(ev.Direction),
			ev.Duration, ev.Content, ev.Carrier, nullableString(metadata), now); err != nil {
			return written, fmt.Errorf("upsert event %s: %w", ev.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event upsert: %w", err)
	}
	return written, nil
}

// GetEventsByUser returns a user's events, newest first. A limit of 0
// means no limit.
func (s *SQLiteStore) GetEventsByUser(ctx context.Context, userID string, limit int) ([]*types.CanonicalEvent, error) {
	query := `SELECT id, user_id, number, ts, type, direction, duration, content, carrier, metadata
		FROM events WHERE user_id = ? ORDER BY ts DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*types.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (*types.CanonicalEvent, error) {
	var ev types.CanonicalEvent
	var eventType, direction string
	var content, carrier, metadata sql.NullString
	if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Number, &ev.Timestamp, &eventType,
		&direction, &ev.Duration, &content, &carrier, &metadata); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = types.EventType(eventType)
	ev.Direction = types.Direction(direction)
	ev.Content = content.String
	ev.Carrier = carrier.String
	ev.Timestamp = ev.Timestamp.UTC()
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

// UpsertContactSummaries merges per-number aggregates: counts and durations
// accumulate, first/last seen extend outward.
func (s *SQLiteStore) UpsertContactSummaries(ctx context.Context, summaries []*types.ContactSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contact_summaries (user_id, number, event_count, total_duration, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, number) DO UPDATE SET
			event_count    = contact_summaries.event_count + excluded.event_count,
			total_duration = contact_summaries.total_duration + excluded.total_duration,
			first_seen     = MIN(contact_summaries.first_seen, excluded.first_seen),
			last_seen      = MAX(contact_summaries.last_seen, excluded.last_seen)`)
	if err != nil {
		return fmt.Errorf("prepare summary upsert: %w", err)
	}
	defer stmt.Close()

	for _, cs := range summaries {
		if _, err := stmt.ExecContext(ctx,
			cs.UserID, cs.Number, cs.EventCount, cs.TotalDuration,
			cs.FirstSeen.UTC(), cs.LastSeen.UTC()); err != nil {
			return fmt.Errorf("upsert summary %s/%s: %w", cs.UserID, cs.Number, err)
		}
	}
	return tx.Commit()
}

// UpdateJobStatus writes the latest progress for a job.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, status *types.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, user_id, stage, progress, message, processed_rows, total_rows, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			stage = excluded.stage, progress = excluded.progress,
			message = excluded.message, processed_rows = excluded.processed_rows,
			total_rows = excluded.total_rows, updated_at = excluded.updated_at`,
		status.JobID, status.UserID, string(status.Stage), status.Progress,
		status.Message, status.ProcessedRows, status.TotalRows, status.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// GetJobStatus returns the latest status for a job, or nil when unknown.
func (s *SQLiteStore) GetJobStatus(ctx context.Context, jobID string) (*types.JobStatus, error) {
	var st types.JobStatus
	var stage string
	err := s.db.QueryRowContext(ctx,
		"SELECT job_id, user_id, stage, progress, message, processed_rows, total_rows, updated_at FROM job_status WHERE job_id = ?",
		jobID).Scan(&st.JobID, &st.UserID, &stage, &st.Progress, &st.Message,
		&st.ProcessedRows, &st.TotalRows, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	st.Stage = types.Stage(stage)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
