// Package scheduler executes due standing orders through the ledger.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/ledger"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/schedule"
)

// errOrderChanged aborts an execution whose order was paused, cancelled or
// edited after the pass picked it up.
var errOrderChanged = errors.New("standing order changed since it was selected")

// Ledger is the part of the ledger engine the scheduler needs.
type Ledger interface {
	ExecuteWithHooks(ctx context.Context, req ledger.Request, hooks ledger.Hooks) (*models.Transaction, error)
}

// Config tunes a Scheduler.
type Config struct {
	Interval     time.Duration
	OrderTimeout time.Duration
	Workers      int
	BatchSize    int
	// MaxConsecutiveFailures pauses an order after that many refused
	// executions in a row. Zero retries forever.
	MaxConsecutiveFailures int
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// Scheduler runs passes over due standing orders.
type Scheduler struct {
	db     *sql.DB
	ledger Ledger
	sink   audit.Sink
	lock   PassLocker
	cfg    Config
	now    func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPassLocker replaces the default in-process pass lock.
func WithPassLocker(l PassLocker) Option {
	return func(s *Scheduler) { s.lock = l }
}

func New(db *sql.DB, l Ledger, sink audit.Sink, cfg Config, opts ...Option) *Scheduler {
	cfg.setDefaults()
	s := &Scheduler{
		db:     db,
		ledger: l,
		sink:   sink,
		lock:   NewLocalPassLocker(),
		cfg:    cfg,
		now:    time.Now,
	}
	if s.sink == nil {
		s.sink = audit.Discard{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PassResult summarizes one pass.
type PassResult struct {
	Skipped   bool `json:"skipped"`
	Due       int  `json:"due"`
	Executed  int  `json:"executed"`
	Completed int  `json:"completed"`
	Replayed  int  `json:"replayed"`
	Failed    int  `json:"failed"`
	Paused    int  `json:"paused"`
	Unchanged int  `json:"unchanged"`
	Abandoned int  `json:"abandoned"`
}

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeCompleted
	outcomeReplayed
	outcomeFailed
	outcomePaused
	outcomeUnchanged
	outcomeAbandoned
)

func (r *PassResult) add(o outcome) {
	switch o {
	case outcomeExecuted:
		r.Executed++
	case outcomeCompleted:
		r.Executed++
		r.Completed++
	case outcomeReplayed:
		r.Replayed++
	case outcomeFailed:
		r.Failed++
	case outcomePaused:
		r.Paused++
	case outcomeUnchanged:
		r.Unchanged++
	case outcomeAbandoned:
		r.Abandoned++
	}
}

// Run executes a pass immediately and then every Interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.FromContext(ctx).With(slog.String("component", "scheduler"))
	log.Info("Standing order scheduler started", "interval", s.cfg.Interval.String(), "workers", s.cfg.Workers)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunPass(ctx)
		select {
		case <-ctx.Done():
			log.Info("Standing order scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunPass executes every due active order once. Orders are independent: one
// failing or panicking never affects the others.
func (s *Scheduler) RunPass(ctx context.Context) PassResult {
	log := logger.FromContext(ctx).With(slog.String("component", "scheduler"))
	var result PassResult

	release, acquired, err := s.lock.TryLock(ctx)
	if err != nil {
		log.Error("Scheduler pass lock unavailable", "error", err)
		result.Skipped = true
		return result
	}
	if !acquired {
		log.Info("Scheduler pass already running elsewhere, skipping")
		result.Skipped = true
		return result
	}
	defer release()

	today := models.DateOf(s.now())
	due, err := model.ListDueStandingOrders(ctx, s.db, today, s.cfg.BatchSize)
	if err != nil {
		log.Error("Failed to list due standing orders", "error", err)
		return result
	}
	result.Due = len(due)
	if len(due) == 0 {
		log.Debug("No standing orders due", "date", models.FormatDate(today))
		return result
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.cfg.Workers)
	)
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(order models.StandingOrder) {
			defer wg.Done()
			defer func() { <-sem }()

			o := s.processSafely(ctx, order)
			mu.Lock()
			result.add(o)
			mu.Unlock()
		}(due[i])
	}
	wg.Wait()

	log.Info("Scheduler pass finished", "date", models.FormatDate(today), "due", result.Due,
		"executed", result.Executed, "completed", result.Completed, "failed", result.Failed,
		"paused", result.Paused, "abandoned", result.Abandoned)
	return result
}

func (s *Scheduler) processSafely(ctx context.Context, order models.StandingOrder) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorFromContext(ctx, "Panic while executing standing order", "orderID", order.ID, "panic", r, "stack", string(debug.Stack()))
			s.sink.LogSystem(ctx, "error", "standing order execution panicked", map[string]any{
				"standing_order_id": order.ID,
				"panic":             fmt.Sprint(r),
			})
			o = outcomeAbandoned
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OrderTimeout)
	defer cancel()
	return s.processOrder(ctx, order)
}

// IdempotencyKey is the ledger reference of one scheduled execution.
func IdempotencyKey(orderID string, dueDate time.Time) string {
	return fmt.Sprintf("so:%s:%s", orderID, models.FormatDate(dueDate))
}

func (s *Scheduler) processOrder(ctx context.Context, order models.StandingOrder) outcome {
	log := logger.FromContext(ctx).With(slog.String("component", "scheduler"), slog.String("orderID", order.ID))
	dueDate := order.NextExecutionDate
	key := IdempotencyKey(order.ID, dueDate)

	progress, err := schedule.Advance(&order)
	if err != nil {
		return s.pauseOnError(ctx, &order, key, err)
	}
	now := s.now().UTC()

	req := ledger.Request{
		SourceAccountID: order.SourceAccountID,
		DestAccountID:   order.DestAccountID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Type:            models.TransactionStandingOrder,
		Description:     describe(&order),
		IdempotencyKey:  key,
		Metadata: models.StandingOrderMetadata{
			StandingOrderID:       order.ID,
			ExecutionDate:         models.FormatDate(dueDate),
			ExecutionNumber:       progress.ExecutionsCount,
			ExternalAccountNumber: order.ExternalAccountNumber,
			BeneficiaryName:       order.BeneficiaryName,
		},
	}
	hooks := ledger.Hooks{
		Before: func(ctx context.Context, tx *sql.Tx) error {
			current, err := model.GetStandingOrder(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if current.Status != models.StandingOrderActive || current.Version != order.Version {
				return errOrderChanged
			}
			return nil
		},
		After: func(ctx context.Context, tx *sql.Tx, _ *models.Transaction) error {
			return model.AdvanceStandingOrder(ctx, tx, order.ID, dueDate, progress.ExecutionsCount,
				progress.NextExecutionDate, progress.Status, now)
		},
	}

	txn, err := s.ledger.ExecuteWithHooks(ctx, req, hooks)
	switch {
	case err == nil:
		log.Info("Standing order executed", "transactionID", txn.ID, "executions", progress.ExecutionsCount,
			"nextExecutionDate", models.FormatDate(progress.NextExecutionDate), "status", progress.Status)
		s.sink.LogTransaction(ctx, audit.ActionOrderExecuted, order.ID, map[string]any{
			"transaction_id":      txn.ID,
			"reference":           key,
			"execution_number":    progress.ExecutionsCount,
			"next_execution_date": models.FormatDate(progress.NextExecutionDate),
		})
		if progress.Completed() {
			s.sink.LogTransaction(ctx, audit.ActionOrderCompleted, order.ID, map[string]any{
				"executions": progress.ExecutionsCount,
			})
			return outcomeCompleted
		}
		return outcomeExecuted

	case errors.Is(err, errOrderChanged):
		log.Info("Standing order changed before execution, leaving it for the next pass")
		return outcomeUnchanged

	case errors.Is(err, models.ErrDuplicateOperation):
		// paid in an earlier attempt; only the schedule is behind
		if advErr := model.AdvanceStandingOrder(ctx, s.db, order.ID, dueDate, progress.ExecutionsCount,
			progress.NextExecutionDate, progress.Status, now); advErr != nil {
			if errors.Is(advErr, models.ErrConcurrentUpdate) {
				return outcomeUnchanged
			}
			log.Error("Failed to advance replayed standing order", "error", advErr)
			return outcomeAbandoned
		}
		log.Warn("Standing order execution replayed, schedule advanced without paying again", "reference", key)
		return outcomeReplayed

	case errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, models.ErrAccountInactive):
		return s.recordFailure(ctx, &order, key, err)

	case isUnrecoverable(err):
		return s.pauseOnError(ctx, &order, key, err)

	default:
		log.Warn("Standing order execution abandoned for this pass", "error", err)
		return outcomeAbandoned
	}
}

// isUnrecoverable reports errors that will repeat on every pass until the
// owner changes something.
func isUnrecoverable(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrCurrencyMismatch) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrInvalidAmount) ||
		errors.Is(err, models.ErrTerminalState)
}

// recordFailure leaves the schedule untouched so the next pass retries, and
// pauses the order once MaxConsecutiveFailures is reached.
func (s *Scheduler) recordFailure(ctx context.Context, order *models.StandingOrder, key string, cause error) outcome {
	log := logger.FromContext(ctx).With(slog.String("component", "scheduler"), slog.String("orderID", order.ID))

	failures, err := model.RecordStandingOrderFailure(ctx, s.db, order.ID, cause.Error(), s.now().UTC())
	if err != nil {
		log.Error("Failed to record standing order failure", "error", err)
		return outcomeAbandoned
	}
	log.Warn("Standing order execution failed, will retry", "reason", cause.Error(), "consecutiveFailures", failures)
	s.sink.LogTransaction(ctx, audit.ActionOrderExecutionFailed, order.ID, map[string]any{
		"reference":            key,
		"reason":               cause.Error(),
		"consecutive_failures": failures,
	})

	if s.cfg.MaxConsecutiveFailures <= 0 || failures < s.cfg.MaxConsecutiveFailures {
		return outcomeFailed
	}

	reason := fmt.Sprintf("paused after %d consecutive failures: %s", failures, cause.Error())
	if err := model.ChangeStandingOrderStatus(ctx, s.db, order.ID, model.StatusChange{
		From:   models.StandingOrderActive,
		To:     models.StandingOrderPaused,
		Reason: reason,
	}, s.now().UTC()); err != nil {
		log.Error("Failed to auto-pause standing order", "error", err)
		return outcomeFailed
	}
	log.Warn("Standing order auto-paused", "consecutiveFailures", failures)
	s.sink.LogTransaction(ctx, audit.ActionOrderAutoPaused, order.ID, map[string]any{
		"reference":            key,
		"reason":               reason,
		"consecutive_failures": failures,
	})
	return outcomePaused
}

// pauseOnError stops an order that cannot succeed without someone fixing it.
func (s *Scheduler) pauseOnError(ctx context.Context, order *models.StandingOrder, key string, cause error) outcome {
	log := logger.FromContext(ctx).With(slog.String("component", "scheduler"), slog.String("orderID", order.ID))

	if err := model.ChangeStandingOrderStatus(ctx, s.db, order.ID, model.StatusChange{
		From:   models.StandingOrderActive,
		To:     models.StandingOrderPaused,
		Reason: cause.Error(),
	}, s.now().UTC()); err != nil {
		if errors.Is(err, models.ErrConcurrentUpdate) {
			return outcomeUnchanged
		}
		log.Error("Failed to pause standing order after error", "cause", cause, "error", err)
		return outcomeAbandoned
	}
	log.Error("Standing order paused on error", "reason", cause.Error())
	s.sink.LogTransaction(ctx, audit.ActionOrderPausedOnError, order.ID, map[string]any{
		"reference": key,
		"reason":    cause.Error(),
	})
	return outcomePaused
}

func describe(o *models.StandingOrder) string {
	if o.Description != "" {
		return o.Description
	}
	if o.Reference != "" {
		return "Standing order: " + o.Reference
	}
	return "Standing order " + o.ID
}
