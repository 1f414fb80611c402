package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
)

const accountColumns = `id, owner_id, account_number, name, currency, balance, overdraft_limit, is_active, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                    models.Account
		balance, overdraft   string
		isActive             int
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &a.AccountNumber, &a.Name, &a.Currency,
		&balance, &overdraft, &isActive, &a.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.Balance, err = parseDecimal(balance, "balance"); err != nil {
		return nil, err
	}
	if a.OverdraftLimit, err = parseDecimal(overdraft, "overdraft_limit"); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	a.IsActive = isActive == 1
	return &a, nil
}

// CreateAccount inserts a new account. Version starts at 1.
func CreateAccount(ctx context.Context, db DBTX, a *models.Account) error {
	if a.Version == 0 {
		a.Version = 1
	}
	active := 0
	if a.IsActive {
		active = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.AccountNumber, a.Name, a.Currency,
		a.Balance.String(), a.OverdraftLimit.String(), active, a.Version,
		formatTimestamp(a.CreatedAt), formatTimestamp(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccountByID returns models.ErrNotFound when no account matches.
func GetAccountByID(ctx context.Context, db DBTX, id string) (*models.Account, error) {
	a, err := scanAccount(db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

// GetAccountByNumber looks an account up by its public account number.
func GetAccountByNumber(ctx context.Context, db DBTX, number string) (*models.Account, error) {
	a, err := scanAccount(db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account number %s: %w", number, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by number %s: %w", number, err)
	}
	return a, nil
}

// ListAccountsByOwner returns the owner's accounts ordered by creation.
func ListAccountsByOwner(ctx context.Context, db DBTX, ownerID string) ([]models.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountBalance writes a new balance if the row still has
// expectedVersion, bumping the version. A lost race is models.ErrConcurrentUpdate.
func UpdateAccountBalance(ctx context.Context, db DBTX, id string, balance decimal.Decimal, expectedVersion int64, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE accounts SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		balance.String(), formatTimestamp(now), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", id, err)
	}
	return checkAffected(res, fmt.Errorf("account %s: %w", id, models.ErrConcurrentUpdate))
}

// SetAccountActive toggles the active flag. Accounts are never deleted.
func SetAccountActive(ctx context.Context, db DBTX, id string, active bool, now time.Time) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := db.ExecContext(ctx, `
		UPDATE accounts SET is_active = ?, version = version + 1, updated_at = ?
		WHERE id = ?`, flag, formatTimestamp(now), id)
	if err != nil {
		return fmt.Errorf("set account %s active=%t: %w", id, active, err)
	}
	return checkAffected(res, fmt.Errorf("account %s: %w", id, models.ErrNotFound))
}
