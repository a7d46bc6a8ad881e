package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tollgrid/cdrpipe/internal/mapping"
	"github.com/tollgrid/cdrpipe/internal/types"
)

// Lookup implements mapping.TemplateStore.
func (s *SQLiteStore) Lookup(ctx context.Context, carrier, formatType string) (*mapping.Template, error) {
	var tpl mapping.Template
	var mappings string
	err := s.db.QueryRowContext(ctx, `
		SELECT carrier, format_type, mappings, usage_count, success_rate, updated_at
		FROM mapping_templates WHERE carrier = ? AND format_type = ?`,
		carrier, formatType).Scan(&tpl.Carrier, &tpl.FormatType, &mappings,
		&tpl.UsageCount, &tpl.SuccessRate, &tpl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("template lookup: %w", err)
	}
	if err := json.Unmarshal([]byte(mappings), &tpl.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshal template mappings: %w", err)
	}
	return &tpl, nil
}

// RecordOutcome implements mapping.TemplateStore. The stored success rate
// is a running average; the mapping set is replaced only on success.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, carrier, formatType string, mappings []types.FieldMapping, success bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin template outcome: %w", err)
	}
	defer tx.Rollback()

	var usageCount int
	var successRate float64
	var stored string
	err = tx.QueryRowContext(ctx,
		"SELECT usage_count, success_rate, mappings FROM mapping_templates WHERE carrier = ? AND format_type = ?",
		carrier, formatType).Scan(&usageCount, &successRate, &stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read template stats: %w", err)
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	successRate = (successRate*float64(usageCount) + outcome) / float64(usageCount+1)
	usageCount++

	if success && len(mappings) > 0 {
		b, err := json.Marshal(mappings)
		if err != nil {
			return fmt.Errorf("marshal template mappings: %w", err)
		}
		stored = string(b)
	}
	if stored == "" {
		stored = "[]"
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mapping_templates (carrier, format_type, mappings, usage_count, success_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(carrier, format_type) DO UPDATE SET
			mappings = excluded.mappings, usage_count = excluded.usage_count,
			success_rate = excluded.success_rate, updated_at = excluded.updated_at`,
		carrier, formatType, stored, usageCount, successRate, time.Now().UTC()); err != nil {
		return fmt.Errorf("write template outcome: %w", err)
	}
	return tx.Commit()
}

// ListTemplates returns all stored templates, most used first.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*mapping.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT carrier, format_type, mappings, usage_count, success_rate, updated_at
		FROM mapping_templates ORDER BY usage_count DESC, carrier, format_type`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*mapping.Template
	for rows.Next() {
		var tpl mapping.Template
		var mappings string
		if err := rows.Scan(&tpl.Carrier, &tpl.FormatType, &mappings,
			&tpl.UsageCount, &tpl.SuccessRate, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(mappings), &tpl.Mappings); err != nil {
			return nil, fmt.Errorf("unmarshal template mappings: %w", err)
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}
