package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/username/standingbank/backend/src/models"
)

const transactionColumns = `id, reference, source_account_id, dest_account_id, amount, currency, type, status, description, metadata, failure_reason, created_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t              models.Transaction
		source, dest   sql.NullString
		amount         string
		txType, status string
		metadata       sql.NullString
		createdAt      string
	)
	if err := row.Scan(&t.ID, &t.Reference, &source, &dest, &amount, &t.Currency,
		&txType, &status, &t.Description, &metadata, &t.FailureReason, &createdAt); err != nil {
		return nil, err
	}

	var err error
	t.SourceAccountID = source.String
	t.DestAccountID = dest.String
	t.Type = models.TransactionType(txType)
	t.Status = models.TransactionStatus(status)
	if t.Amount, err = parseDecimal(amount, "amount"); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if metadata.Valid {
		if t.Metadata, err = models.DecodeMetadata([]byte(metadata.String)); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

// InsertTransaction appends a ledger record. Rows are immutable once written.
func InsertTransaction(ctx context.Context, db DBTX, t *models.Transaction) error {
	raw, err := models.EncodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	metadata := sql.NullString{String: string(raw), Valid: raw != nil}

	_, err = db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Reference, nullString(t.SourceAccountID), nullString(t.DestAccountID),
		t.Amount.String(), t.Currency, string(t.Type), string(t.Status), t.Description,
		metadata, t.FailureReason, formatTimestamp(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.Reference, err)
	}
	return nil
}

// GetCompletedTransactionByReference finds the committed transaction for an
// idempotency reference, or models.ErrNotFound.
func GetCompletedTransactionByReference(ctx context.Context, db DBTX, reference string) (*models.Transaction, error) {
	t, err := scanTransaction(db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = ? AND status = 'completed'`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", reference, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", reference, err)
	}
	return t, nil
}

// ListTransactionsByAccount returns movements touching accountID, newest first.
func ListTransactionsByAccount(ctx context.Context, db DBTX, accountID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE source_account_id = ? OR dest_account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, accountID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", accountID, err)
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// CountCompletedByReference is used by tests and reconciliation to assert
// that a reference was settled at most once.
func CountCompletedByReference(ctx context.Context, db DBTX, reference string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE reference = ? AND status = 'completed'`, reference).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions %s: %w", reference, err)
	}
	return n, nil
}
