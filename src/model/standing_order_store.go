package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/standingbank/backend/src/models"
)

const standingOrderColumns = `so.id, so.source_account_id, so.dest_account_id, so.external_account_number, so.beneficiary_name,
	so.amount, so.currency, so.frequency, so.start_date, so.end_date, so.max_executions, so.executions_count,
	so.next_execution_date, so.status, so.reference, so.description, so.consecutive_failures, so.last_failure_reason,
	so.last_executed_at, so.created_by, so.created_at, so.updated_at, so.version`

func scanStandingOrder(row rowScanner) (*models.StandingOrder, error) {
	var (
		o                                 models.StandingOrder
		dest, external, endDate, lastExec sql.NullString
		maxExec                           sql.NullInt64
		amount, frequency, status         string
		startDate, nextDate               string
		createdAt, updatedAt              string
	)
	if err := row.Scan(&o.ID, &o.SourceAccountID, &dest, &external, &o.BeneficiaryName,
		&amount, &o.Currency, &frequency, &startDate, &endDate, &maxExec, &o.ExecutionsCount,
		&nextDate, &status, &o.Reference, &o.Description, &o.ConsecutiveFailures, &o.LastFailureReason,
		&lastExec, &o.CreatedBy, &createdAt, &updatedAt, &o.Version); err != nil {
		return nil, err
	}

	var err error
	o.DestAccountID = dest.String
	o.ExternalAccountNumber = external.String
	o.Frequency = models.Frequency(frequency)
	o.Status = models.StandingOrderStatus(status)
	if o.Amount, err = parseDecimal(amount, "amount"); err != nil {
		return nil, err
	}
	if o.StartDate, err = models.ParseDate(startDate); err != nil {
		return nil, err
	}
	if o.NextExecutionDate, err = models.ParseDate(nextDate); err != nil {
		return nil, err
	}
	if endDate.Valid {
		d, err := models.ParseDate(endDate.String)
		if err != nil {
			return nil, err
		}
		o.EndDate = &d
	}
	if maxExec.Valid {
		n := int(maxExec.Int64)
		o.MaxExecutions = &n
	}
	if lastExec.Valid {
		ts, err := parseTimestamp(lastExec.String)
		if err != nil {
			return nil, err
		}
		o.LastExecutedAt = &ts
	}
	if o.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// CreateStandingOrder inserts a new order.
func CreateStandingOrder(ctx context.Context, db DBTX, o *models.StandingOrder) error {
	if o.Version == 0 {
		o.Version = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO standing_orders (id, source_account_id, dest_account_id, external_account_number, beneficiary_name,
			amount, currency, frequency, start_date, end_date, max_executions, executions_count,
			next_execution_date, status, reference, description, consecutive_failures, last_failure_reason,
			last_executed_at, created_by, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SourceAccountID, nullString(o.DestAccountID), nullString(o.ExternalAccountNumber), o.BeneficiaryName,
		o.Amount.String(), o.Currency, string(o.Frequency), models.FormatDate(o.StartDate), nullDate(o.EndDate),
		nullInt(o.MaxExecutions), o.ExecutionsCount, models.FormatDate(o.NextExecutionDate), string(o.Status),
		o.Reference, o.Description, o.ConsecutiveFailures, o.LastFailureReason, nullTimestamp(o.LastExecutedAt),
		o.CreatedBy, formatTimestamp(o.CreatedAt), formatTimestamp(o.UpdatedAt), o.Version)
	if err != nil {
		return fmt.Errorf("insert standing order %s: %w", o.ID, err)
	}
	return nil
}

// GetStandingOrder returns models.ErrNotFound when the order does not exist.
func GetStandingOrder(ctx context.Context, db DBTX, id string) (*models.StandingOrder, error) {
	o, err := scanStandingOrder(db.QueryRowContext(ctx,
		`SELECT `+standingOrderColumns+` FROM standing_orders so WHERE so.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("standing order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get standing order %s: %w", id, err)
	}
	return o, nil
}

// GetStandingOrderForOwner scopes the lookup to orders whose source account
// belongs to ownerID. Other owners' orders are reported as not found.
func GetStandingOrderForOwner(ctx context.Context, db DBTX, id, ownerID string) (*models.StandingOrder, error) {
	o, err := scanStandingOrder(db.QueryRowContext(ctx, `
		SELECT `+standingOrderColumns+` FROM standing_orders so
		JOIN accounts a ON a.id = so.source_account_id
		WHERE so.id = ? AND a.owner_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("standing order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get standing order %s: %w", id, err)
	}
	return o, nil
}

// ListStandingOrdersByOwner lists every order funded from one of ownerID's accounts.
func ListStandingOrdersByOwner(ctx context.Context, db DBTX, ownerID string) ([]models.StandingOrder, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+standingOrderColumns+` FROM standing_orders so
		JOIN accounts a ON a.id = so.source_account_id
		WHERE a.owner_id = ?
		ORDER BY so.created_at DESC, so.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list standing orders for %s: %w", ownerID, err)
	}
	return collectStandingOrders(rows)
}

// ListDueStandingOrders returns active orders whose next execution date is on
// or before today, oldest first.
func ListDueStandingOrders(ctx context.Context, db DBTX, today time.Time, limit int) ([]models.StandingOrder, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+standingOrderColumns+` FROM standing_orders so
		WHERE so.status = 'active' AND so.next_execution_date <= ?
		ORDER BY so.next_execution_date, so.id
		LIMIT ?`, models.FormatDate(today), limit)
	if err != nil {
		return nil, fmt.Errorf("list due standing orders: %w", err)
	}
	return collectStandingOrders(rows)
}

func collectStandingOrders(rows *sql.Rows) ([]models.StandingOrder, error) {
	defer rows.Close()
	orders := []models.StandingOrder{}
	for rows.Next() {
		o, err := scanStandingOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan standing order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// UpdateStandingOrderDetails writes the user-editable fields of o if the row
// still has o.Version and is not terminal.
func UpdateStandingOrderDetails(ctx context.Context, db DBTX, o *models.StandingOrder, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE standing_orders SET amount = ?, beneficiary_name = ?, end_date = ?, max_executions = ?,
			reference = ?, description = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status IN ('active', 'paused')`,
		o.Amount.String(), o.BeneficiaryName, nullDate(o.EndDate), nullInt(o.MaxExecutions),
		o.Reference, o.Description, formatTimestamp(now), o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("update standing order %s: %w", o.ID, err)
	}
	if err := checkAffected(res, fmt.Errorf("standing order %s: %w", o.ID, models.ErrConcurrentUpdate)); err != nil {
		return err
	}
	o.Version++
	o.UpdatedAt = now
	return nil
}

// StatusChange describes a compare-and-set status transition.
type StatusChange struct {
	From              models.StandingOrderStatus
	To                models.StandingOrderStatus
	NextExecutionDate *time.Time
	ResetFailures     bool
	Reason            string
}

// ChangeStandingOrderStatus moves the order from change.From to change.To.
// It fails with models.ErrConcurrentUpdate when the stored status is no longer
// change.From.
func ChangeStandingOrderStatus(ctx context.Context, db DBTX, id string, change StatusChange, now time.Time) error {
	if !models.CanTransition(change.From, change.To) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, change.From, change.To)
	}

	query := `UPDATE standing_orders SET status = ?, updated_at = ?, version = version + 1`
	args := []any{string(change.To), formatTimestamp(now)}
	if change.NextExecutionDate != nil {
		query += `, next_execution_date = ?`
		args = append(args, models.FormatDate(*change.NextExecutionDate))
	}
	if change.ResetFailures {
		query += `, consecutive_failures = 0`
	}
	if change.Reason != "" {
		query += `, last_failure_reason = ?`
		args = append(args, change.Reason)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(change.From))

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("change standing order %s status: %w", id, err)
	}
	return checkAffected(res, fmt.Errorf("standing order %s: %w", id, models.ErrConcurrentUpdate))
}

// AdvanceStandingOrder records a successful execution. It only applies while
// the order is still active with expectedNext as its due date, so a pause or
// cancel that landed first wins.
func AdvanceStandingOrder(ctx context.Context, db DBTX, id string, expectedNext time.Time, executions int,
	next time.Time, status models.StandingOrderStatus, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE standing_orders SET executions_count = ?, next_execution_date = ?, status = ?,
			consecutive_failures = 0, last_failure_reason = '', last_executed_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND status = 'active' AND next_execution_date = ?`,
		executions, models.FormatDate(next), string(status), formatTimestamp(now), formatTimestamp(now),
		id, models.FormatDate(expectedNext))
	if err != nil {
		return fmt.Errorf("advance standing order %s: %w", id, err)
	}
	return checkAffected(res, fmt.Errorf("standing order %s: %w", id, models.ErrConcurrentUpdate))
}

// RecordStandingOrderFailure bumps the consecutive failure counter without
// touching the schedule and returns the new count.
func RecordStandingOrderFailure(ctx context.Context, db DBTX, id string, reason string, now time.Time) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE standing_orders SET consecutive_failures = consecutive_failures + 1, last_failure_reason = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND status = 'active'`, reason, formatTimestamp(now), id)
	if err != nil {
		return 0, fmt.Errorf("record failure for standing order %s: %w", id, err)
	}
	if err := checkAffected(res, fmt.Errorf("standing order %s: %w", id, models.ErrConcurrentUpdate)); err != nil {
		return 0, err
	}

	var failures int
	if err := db.QueryRowContext(ctx, `SELECT consecutive_failures FROM standing_orders WHERE id = ?`, id).Scan(&failures); err != nil {
		return 0, fmt.Errorf("read failures for standing order %s: %w", id, err)
	}
	return failures, nil
}
