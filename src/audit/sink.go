// Package audit records the financial and operational audit trail.
// Delivery is best effort: a failing sink never affects a committed operation.
package audit

import (
	"context"
	"database/sql"
	"sync"

	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
)

// Actions emitted by the ledger and the standing order lifecycle.
const (
	ActionTransactionCompleted = "ledger.transaction.completed"
	ActionTransactionFailed    = "ledger.transaction.failed"
	ActionTransactionReplayed  = "ledger.transaction.replayed"
	ActionOrderCreated         = "standing_order.created"
	ActionOrderUpdated         = "standing_order.updated"
	ActionOrderPaused          = "standing_order.paused"
	ActionOrderResumed         = "standing_order.resumed"
	ActionOrderCancelled       = "standing_order.cancelled"
	ActionOrderExecuted        = "standing_order.executed"
	ActionOrderCompleted       = "standing_order.completed"
	ActionOrderExecutionFailed = "standing_order.execution_failed"
	ActionOrderPausedOnError   = "standing_order.paused_on_error"
	ActionOrderAutoPaused      = "standing_order.auto_paused"
	ActionStockTradeSettled    = "stock.trade.settled"
)

// Sink receives audit events.
type Sink interface {
	LogTransaction(ctx context.Context, action, reference string, details map[string]any)
	LogSystem(ctx context.Context, level, message string, meta map[string]any)
}

// Writer persists a single event.
type Writer interface {
	Write(ctx context.Context, e *models.AuditEvent) error
}

// SQLWriter stores events in the audit_logs table.
type SQLWriter struct {
	db *sql.DB
}

func NewSQLWriter(db *sql.DB) *SQLWriter {
	return &SQLWriter{db: db}
}

func (w *SQLWriter) Write(ctx context.Context, e *models.AuditEvent) error {
	return model.InsertAuditEvent(ctx, w.db, e)
}

// Discard drops every event.
type Discard struct{}

func (Discard) LogTransaction(context.Context, string, string, map[string]any) {}
func (Discard) LogSystem(context.Context, string, string, map[string]any)      {}

// MemorySink keeps events in memory. It is synchronous and safe for
// concurrent use; tests read Events after the fact.
type MemorySink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) LogTransaction(_ context.Context, action, reference string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.AuditEvent{
		Kind: models.AuditKindTransaction, Action: action, Reference: reference, Details: details,
	})
}

func (m *MemorySink) LogSystem(_ context.Context, level, message string, meta map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.AuditEvent{
		Kind: models.AuditKindSystem, Level: level, Message: message, Details: meta,
	})
}

// Events returns a copy of everything recorded so far.
func (m *MemorySink) Events() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Actions returns the recorded transaction actions for reference, in order.
func (m *MemorySink) Actions(reference string) []string {
	var actions []string
	for _, e := range m.Events() {
		if e.Kind == models.AuditKindTransaction && e.Reference == reference {
			actions = append(actions, e.Action)
		}
	}
	return actions
}

// Count returns how many transaction events carry action.
func (m *MemorySink) Count(action string) int {
	n := 0
	for _, e := range m.Events() {
		if e.Action == action {
			n++
		}
	}
	return n
}
