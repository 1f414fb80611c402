// Package ledger moves money between accounts. Every movement is a single
// database transaction that updates balances and appends an immutable
// transaction record, or changes nothing.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
)

// Engine executes ledger movements.
type Engine struct {
	db    *sql.DB
	sink  audit.Sink
	locks *AccountLocks
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *sql.DB, sink audit.Sink, opts ...Option) *Engine {
	e := &Engine{
		db:    db,
		sink:  sink,
		locks: NewAccountLocks(),
		now:   time.Now,
	}
	if e.sink == nil {
		e.sink = audit.Discard{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs req atomically. See ExecuteWithHooks.
func (e *Engine) Execute(ctx context.Context, req Request) (*models.Transaction, error) {
	return e.ExecuteWithHooks(ctx, req, Hooks{})
}

// ExecuteWithHooks performs req atomically together with the caller's hooks.
//
// When a completed transaction with the same idempotency key exists it is
// returned alongside models.ErrDuplicateOperation and nothing changes.
// Refused movements (insufficient funds or holdings, inactive account,
// currency mismatch) leave balances untouched and are kept as a failed transaction row.
func (e *Engine) ExecuteWithHooks(ctx context.Context, req Request, hooks Hooks) (*models.Transaction, error) {
	log := logger.FromContext(ctx).With(slog.String("component", "ledger"))

	if err := req.validate(); err != nil {
		e.emitFailure(ctx, req, req.IdempotencyKey, err)
		return nil, err
	}

	reference := req.IdempotencyKey
	if reference == "" {
		reference = uuid.NewString()
	}

	unlock, err := e.locks.Lock(ctx, req.SourceAccountID, req.DestAccountID)
	if err != nil {
		return nil, fmt.Errorf("acquire account locks: %w", err)
	}
	defer unlock()

	txn, err := e.apply(ctx, req, reference, hooks)
	switch {
	case err == nil:
		log.Info("Ledger transaction completed", "reference", reference, "type", req.Type, "amount", req.Amount.String(), "currency", req.Currency)
		e.sink.LogTransaction(ctx, audit.ActionTransactionCompleted, reference, auditDetails(req, txn.ID, ""))
		return txn, nil

	case errors.Is(err, models.ErrDuplicateOperation):
		log.Info("Ledger transaction replayed", "reference", reference)
		e.sink.LogTransaction(ctx, audit.ActionTransactionReplayed, reference, auditDetails(req, txn.ID, ""))
		return txn, err

	case isRefusal(err):
		log.Warn("Ledger transaction refused", "reference", reference, "type", req.Type, "error", err)
		failedID := e.recordFailure(ctx, req, reference, err)
		e.sink.LogTransaction(ctx, audit.ActionTransactionFailed, reference, auditDetails(req, failedID, err.Error()))
		return nil, err

	default:
		log.Error("Ledger transaction aborted", "reference", reference, "type", req.Type, "error", err)
		e.emitFailure(ctx, req, reference, err)
		return nil, err
	}
}

// apply runs the movement in one database transaction. The deferred rollback
// must complete before the caller touches e.db again: SQLite runs on a single
// connection.
func (e *Engine) apply(ctx context.Context, req Request, reference string, hooks Hooks) (*models.Transaction, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.FromContext(ctx).Error("Error rolling back ledger transaction", "reference", reference, "rollbackError", rbErr)
			}
		}
	}()

	if req.IdempotencyKey != "" {
		prior, err := model.GetCompletedTransactionByReference(ctx, tx, reference)
		if err == nil {
			return prior, models.ErrDuplicateOperation
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	if hooks.Before != nil {
		if err := hooks.Before(ctx, tx); err != nil {
			return nil, err
		}
	}

	now := e.now().UTC()

	var source, dest *models.Account
	if req.SourceAccountID != "" {
		if source, err = e.loadAccount(ctx, tx, req.SourceAccountID, req.Currency); err != nil {
			return nil, err
		}
	}
	if req.DestAccountID != "" {
		if dest, err = e.loadAccount(ctx, tx, req.DestAccountID, req.Currency); err != nil {
			return nil, err
		}
	}
	if source != nil && !source.CanDebit(req.Amount) {
		return nil, &models.InsufficientFundsError{
			AccountID: source.ID,
			Available: source.Available(),
			Requested: req.Amount,
			Currency:  source.Currency,
		}
	}

	if source != nil {
		if err := model.UpdateAccountBalance(ctx, tx, source.ID, source.Balance.Sub(req.Amount), source.Version, now); err != nil {
			return nil, err
		}
	}
	if dest != nil {
		if err := model.UpdateAccountBalance(ctx, tx, dest.ID, dest.Balance.Add(req.Amount), dest.Version, now); err != nil {
			return nil, err
		}
	}

	txn := &models.Transaction{
		ID:              uuid.NewString(),
		Reference:       reference,
		SourceAccountID: req.SourceAccountID,
		DestAccountID:   req.DestAccountID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Type:            req.Type,
		Status:          models.TransactionCompleted,
		Description:     req.Description,
		Metadata:        req.Metadata,
		CreatedAt:       now,
	}
	if err := model.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	if hooks.After != nil {
		if err := hooks.After(ctx, tx, txn); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger transaction %s: %w", reference, err)
	}
	committed = true
	return txn, nil
}

func (e *Engine) loadAccount(ctx context.Context, tx *sql.Tx, id, currency string) (*models.Account, error) {
	a, err := model.GetAccountByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrAccountInactive)
	}
	if a.Currency != currency {
		return nil, fmt.Errorf("%w: account %s holds %s, movement is in %s", models.ErrCurrencyMismatch, id, a.Currency, currency)
	}
	return a, nil
}

// isRefusal reports business refusals that are kept as failed transaction rows.
func isRefusal(err error) bool {
	return errors.Is(err, models.ErrInsufficientFunds) ||
		errors.Is(err, models.ErrAccountInactive) ||
		errors.Is(err, models.ErrCurrencyMismatch) ||
		errors.Is(err, models.ErrInsufficientHoldings)
}

// recordFailure stores a failed transaction row. It is best effort: the
// movement has already been refused, so an error here is only logged.
func (e *Engine) recordFailure(ctx context.Context, req Request, reference string, cause error) string {
	failed := &models.Transaction{
		ID:              uuid.NewString(),
		Reference:       reference,
		SourceAccountID: req.SourceAccountID,
		DestAccountID:   req.DestAccountID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Type:            req.Type,
		Status:          models.TransactionFailed,
		Description:     req.Description,
		Metadata:        req.Metadata,
		FailureReason:   cause.Error(),
		CreatedAt:       e.now().UTC(),
	}
	if err := model.InsertTransaction(context.WithoutCancel(ctx), e.db, failed); err != nil {
		logger.FromContext(ctx).Error("Failed to record refused transaction", "reference", reference, "error", err)
		return ""
	}
	return failed.ID
}

func (e *Engine) emitFailure(ctx context.Context, req Request, reference string, cause error) {
	e.sink.LogTransaction(ctx, audit.ActionTransactionFailed, reference, auditDetails(req, "", cause.Error()))
}

func auditDetails(req Request, transactionID, reason string) map[string]any {
	d := map[string]any{
		"type":     string(req.Type),
		"amount":   req.Amount.String(),
		"currency": req.Currency,
	}
	if req.SourceAccountID != "" {
		d["source_account_id"] = req.SourceAccountID
	}
	if req.DestAccountID != "" {
		d["dest_account_id"] = req.DestAccountID
	}
	if transactionID != "" {
		d["transaction_id"] = transactionID
	}
	if reason != "" {
		d["reason"] = reason
	}
	return d
}

// Deposit credits accountID with cash from outside the bank.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, currency, description, idempotencyKey string) (*models.Transaction, error) {
	return e.Execute(ctx, Request{
		DestAccountID:  accountID,
		Amount:         amount,
		Currency:       currency,
		Type:           models.TransactionDeposit,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		Metadata:       models.CashMetadata{Direction: models.TransactionDeposit, Channel: "teller"},
	})
}

// Withdraw debits accountID for cash leaving the bank.
func (e *Engine) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, currency, description, idempotencyKey string) (*models.Transaction, error) {
	return e.Execute(ctx, Request{
		SourceAccountID: accountID,
		Amount:          amount,
		Currency:        currency,
		Type:            models.TransactionWithdrawal,
		Description:     description,
		IdempotencyKey:  idempotencyKey,
		Metadata:        models.CashMetadata{Direction: models.TransactionWithdrawal, Channel: "teller"},
	})
}
