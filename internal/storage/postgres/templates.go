package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tollgrid/cdrpipe/internal/mapping"
	"github.com/tollgrid/cdrpipe/internal/recovery"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// Lookup implements mapping.TemplateStore.
func (p *PostgresStore) Lookup(ctx context.Context, carrier, formatType string) (*mapping.Template, error) {
	var tpl mapping.Template
	var mappings []byte
	err := p.pool.QueryRow(ctx, `
		SELECT carrier, format_type, mappings, usage_count, success_rate, updated_at
		FROM mapping_templates WHERE carrier = $1 AND format_type = $2`,
		carrier, formatType).Scan(&tpl.Carrier, &tpl.FormatType, &mappings,
		&tpl.UsageCount, &tpl.SuccessRate, &tpl.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("template lookup: %w", err)
	}
	if err := json.Unmarshal(mappings, &tpl.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshal template mappings: %w", err)
	}
	return &tpl, nil
}

// RecordOutcome implements mapping.TemplateStore with an atomic in-place
// running-average update.
func (p *PostgresStore) RecordOutcome(ctx context.Context, carrier, formatType string, mappings []types.FieldMapping, success bool) error {
	outcome := 0.0
	stored := []byte("[]")
	if success {
		outcome = 1.0
		if len(mappings) > 0 {
			b, err := json.Marshal(mappings)
			if err != nil {
				return fmt.Errorf("marshal template mappings: %w", err)
			}
			stored = b
		}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO mapping_templates (carrier, format_type, mappings, usage_count, success_rate, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (carrier, format_type) DO UPDATE SET
			success_rate = (mapping_templates.success_rate * mapping_templates.usage_count + $4)
				/ (mapping_templates.usage_count + 1),
			usage_count = mapping_templates.usage_count + 1,
			mappings = CASE WHEN $6 THEN EXCLUDED.mappings ELSE mapping_templates.mappings END,
			updated_at = EXCLUDED.updated_at`,
		carrier, formatType, stored, outcome, time.Now().UTC(), success && len(mappings) > 0)
	if err != nil {
		return fmt.Errorf("record template outcome: %w", err)
	}
	return nil
}

// ListTemplates returns all stored templates, most used first.
func (p *PostgresStore) ListTemplates(ctx context.Context) ([]*mapping.Template, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT carrier, format_type, mappings, usage_count, success_rate, updated_at
		FROM mapping_templates ORDER BY usage_count DESC, carrier, format_type`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*mapping.Template
	for rows.Next() {
		var tpl mapping.Template
		var mappings []byte
		if err := rows.Scan(&tpl.Carrier, &tpl.FormatType, &mappings,
			&tpl.UsageCount, &tpl.SuccessRate, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal(mappings, &tpl.Mappings); err != nil {
			return nil, fmt.Errorf("unmarshal template mappings: %w", err)
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}

// Add implements recovery.DeadLetterStore.
func (p *PostgresStore) Add(ctx context.Context, entry *recovery.DeadLetter) error {
	item, err := json.Marshal(entry.Item)
	if err != nil {
		return fmt.Errorf("marshal dead-letter item: %w", err)
	}
	errJSON, err := json.Marshal(entry.Error)
	if err != nil {
		return fmt.Errorf("marshal dead-letter error: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, job_id, item_id, item, error, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.JobID, entry.ItemID, item, errJSON, entry.RetryCount, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// List implements recovery.DeadLetterStore.
func (p *PostgresStore) List(ctx context.Context, jobID string, limit int) ([]*recovery.DeadLetter, error) {
	query := `SELECT id, job_id, COALESCE(item_id, ''), item, error, retry_count, created_at
		FROM dead_letters`
	var args []any
	if jobID != "" {
		query += " WHERE job_id = $1"
		args = append(args, jobID)
	}
	query += " ORDER BY created_at"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*recovery.DeadLetter
	for rows.Next() {
		var entry recovery.DeadLetter
		var item, errJSON []byte
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.ItemID, &item, &errJSON,
			&entry.RetryCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if len(item) > 0 {
			if err := json.Unmarshal(item, &entry.Item); err != nil {
				return nil, fmt.Errorf("unmarshal dead-letter item %s: %w", entry.ID, err)
			}
		}
		entry.Error = &types.ValidationError{}
		if err := json.Unmarshal(errJSON, entry.Error); err != nil {
			return nil, fmt.Errorf("unmarshal dead-letter error %s: %w", entry.ID, err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// Remove implements recovery.DeadLetterStore.
func (p *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM dead_letters WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("remove dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %s not found", id)
	}
	return nil
}
