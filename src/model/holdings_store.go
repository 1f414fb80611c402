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

// GetHolding returns the quantity held, zero when the account never held symbol.
func GetHolding(ctx context.Context, db DBTX, accountID, symbol string) (decimal.Decimal, error) {
	var qty string
	err := db.QueryRowContext(ctx,
		`SELECT quantity FROM stock_holdings WHERE account_id = ? AND symbol = ?`, accountID, symbol).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get holding %s/%s: %w", accountID, symbol, err)
	}
	return parseDecimal(qty, "quantity")
}

// AdjustHolding adds delta (negative to sell) to the holding. The result may
// not go below zero.
func AdjustHolding(ctx context.Context, db DBTX, accountID, symbol string, delta decimal.Decimal, now time.Time) error {
	current, err := GetHolding(ctx, db, accountID, symbol)
	if err != nil {
		return err
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: holding %s of %s, requested %s", models.ErrInsufficientHoldings, current.String(), symbol, delta.Neg().String())
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO stock_holdings (account_id, symbol, quantity, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, symbol) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`,
		accountID, symbol, next.String(), formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("upsert holding %s/%s: %w", accountID, symbol, err)
	}
	return nil
}

// ListHoldings returns the non-zero holdings of an account.
func ListHoldings(ctx context.Context, db DBTX, accountID string) ([]models.StockHolding, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT account_id, symbol, quantity, updated_at FROM stock_holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list holdings for %s: %w", accountID, err)
	}
	defer rows.Close()

	holdings := []models.StockHolding{}
	for rows.Next() {
		var (
			h              models.StockHolding
			qty, updatedAt string
		)
		if err := rows.Scan(&h.AccountID, &h.Symbol, &qty, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if h.Quantity, err = parseDecimal(qty, "quantity"); err != nil {
			return nil, err
		}
		if h.Quantity.IsZero() {
			continue
		}
		if h.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
