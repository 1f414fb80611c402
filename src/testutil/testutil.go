// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/username/standingbank/backend/src/database"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
)

var accountSeq atomic.Int64

// NewTestDB opens a migrated SQLite database in a temp directory. It is
// closed when the test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// AccountOption customizes a seeded account.
type AccountOption func(*models.Account)

// WithOverdraft sets the overdraft limit.
func WithOverdraft(limit string) AccountOption {
	return func(a *models.Account) { a.OverdraftLimit = decimal.RequireFromString(limit) }
}

// Inactive seeds a deactivated account.
func Inactive() AccountOption {
	return func(a *models.Account) { a.IsActive = false }
}

// WithNumber sets the public account number.
func WithNumber(number string) AccountOption {
	return func(a *models.Account) { a.AccountNumber = number }
}

// SeedAccount inserts an active account with the given balance.
func SeedAccount(t testing.TB, db *sql.DB, ownerID, currency, balance string, opts ...AccountOption) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	a := &models.Account{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		AccountNumber:  fmt.Sprintf("TEST%08d", accountSeq.Add(1)),
		Name:           "test account",
		Currency:       currency,
		Balance:        decimal.RequireFromString(balance),
		OverdraftLimit: decimal.Zero,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, model.CreateAccount(context.Background(), db, a))
	return a
}

// Balance reads the current balance of an account.
func Balance(t testing.TB, db *sql.DB, accountID string) decimal.Decimal {
	t.Helper()
	a, err := model.GetAccountByID(context.Background(), db, accountID)
	require.NoError(t, err)
	return a.Balance
}

// FixedClock returns a clock func pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
