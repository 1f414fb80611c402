package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/username/standingbank/backend/src/models"
)

// InsertAuditEvent persists one audit record.
func InsertAuditEvent(ctx context.Context, db DBTX, e *models.AuditEvent) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, kind, action, reference, level, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Action, e.Reference, e.Level, e.Message, details, formatTimestamp(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", e.Action, err)
	}
	return nil
}

// ListAuditEventsByReference returns the trail of one reference, oldest first.
func ListAuditEventsByReference(ctx context.Context, db DBTX, reference string) ([]models.AuditEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, action, reference, level, message, details, created_at
		FROM audit_logs WHERE reference = ? ORDER BY created_at, id`, reference)
	if err != nil {
		return nil, fmt.Errorf("list audit events for %s: %w", reference, err)
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var (
			e         models.AuditEvent
			kind      string
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Action, &e.Reference, &e.Level, &e.Message, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Kind = models.AuditKind(kind)
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
