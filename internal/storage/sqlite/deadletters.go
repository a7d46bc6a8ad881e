package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// Add implements recovery.DeadLetterStore.
func (s *SQLiteStore) Add(ctx context.Context, entry *recovery.DeadLetter) error {
	item, err := json.Marshal(entry.Item)
	if err != nil {
		return fmt.Errorf("marshal dead-letter item: %w", err)
	}
	errJSON, err := json.Marshal(entry.Error)
	if err != nil {
		return fmt.Errorf("marshal dead-letter error: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, job_id, item_id, item, error, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID, entry.ItemID, string(item), string(errJSON),
		entry.RetryCount, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// List implements recovery.DeadLetterStore. An empty jobID matches all
// jobs; a limit of 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, jobID string, limit int) ([]*recovery.DeadLetter, error) {
	query := "SELECT id, job_id, item_id, item, error, retry_count, created_at FROM dead_letters"
	var args []any
	if jobID != "" {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY created_at"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*recovery.DeadLetter
	for rows.Next() {
		var entry recovery.DeadLetter
		var item, errJSON string
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.ItemID, &item, &errJSON,
			&entry.RetryCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if item != "" && item != "null" {
			if err := json.Unmarshal([]byte(item), &entry.Item); err != nil {
				return nil, fmt.Errorf("unmarshal dead-letter item %s: %w", entry.ID, err)
			}
		}
		entry.Error = &types.ValidationError{}
		if err := json.Unmarshal([]byte(errJSON), entry.Error); err != nil {
			return nil, fmt.Errorf("unmarshal dead-letter error %s: %w", entry.ID, err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// Remove implements recovery.DeadLetterStore.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM dead_letters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove dead letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove dead letter: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dead letter %s not found", id)
	}
	return nil
}
