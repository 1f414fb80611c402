package models

import "time"

// AuditKind separates financial trail entries from operational messages.
type AuditKind string

const (
	AuditKindTransaction AuditKind = "transaction"
	AuditKindSystem      AuditKind = "system"
)

// AuditEvent is one audit trail record.
type AuditEvent struct {
	ID        string         `json:"id"`
	Kind      AuditKind      `json:"kind"`
	Action    string         `json:"action,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
