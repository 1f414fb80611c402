package model_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/testutil"
)

func newOrder(source, dest string, next time.Time) *models.StandingOrder {
	now := time.Now().UTC()
	return &models.StandingOrder{
		ID:                uuid.NewString(),
		SourceAccountID:   source,
		DestAccountID:     dest,
		Amount:            decimal.RequireFromString("10.00"),
		Currency:          "USD",
		Frequency:         models.FrequencyMonthly,
		StartDate:         next,
		NextExecutionDate: next,
		Status:            models.StandingOrderActive,
		Reference:         "rent",
		CreatedBy:         "user-1",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestAccountBalanceCompareAndSet(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.SeedAccount(t, db, "owner-1", "USD", "50.00")

	require.NoError(t, model.UpdateAccountBalance(ctx, db, acc.ID, decimal.RequireFromString("40.00"), acc.Version, time.Now()))

	err := model.UpdateAccountBalance(ctx, db, acc.ID, decimal.RequireFromString("30.00"), acc.Version, time.Now())
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate, "stale version must be rejected")

	got, err := model.GetAccountByID(ctx, db, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, acc.Version+1, got.Version)
}

func TestAccountsAreNeverDeleted(t *testing.T) {
	db := testutil.NewTestDB(t)
	acc := testutil.SeedAccount(t, db, "owner-1", "USD", "0")

	_, err := db.Exec(`DELETE FROM accounts WHERE id = ?`, acc.ID)
	assert.Error(t, err)
}

func TestTransactionsAreImmutableAndIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.SeedAccount(t, db, "owner-1", "USD", "0")

	tx := &models.Transaction{
		ID:            uuid.NewString(),
		Reference:     "ref-1",
		DestAccountID: acc.ID,
		Amount:        decimal.RequireFromString("5"),
		Currency:      "USD",
		Type:          models.TransactionDeposit,
		Status:        models.TransactionCompleted,
		Metadata:      models.CashMetadata{Direction: models.TransactionDeposit, Channel: "teller"},
		CreatedAt:     time.Now(),
	}
	require.NoError(t, model.InsertTransaction(ctx, db, tx))

	dup := *tx
	dup.ID = uuid.NewString()
	assert.Error(t, model.InsertTransaction(ctx, db, &dup), "second completed row with same reference")

	failed := *tx
	failed.ID = uuid.NewString()
	failed.Status = models.TransactionFailed
	assert.NoError(t, model.InsertTransaction(ctx, db, &failed), "failed attempts may share the reference")

	_, err := db.Exec(`UPDATE transactions SET amount = '6' WHERE id = ?`, tx.ID)
	assert.Error(t, err)

	got, err := model.GetCompletedTransactionByReference(ctx, db, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	meta, ok := got.Metadata.(models.CashMetadata)
	require.True(t, ok)
	assert.Equal(t, "teller", meta.Channel)

	_, err = model.GetCompletedTransactionByReference(ctx, db, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStandingOrderLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, db, "owner-1", "USD", "100")
	dst := testutil.SeedAccount(t, db, "owner-2", "USD", "0")

	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	o := newOrder(src.ID, dst.ID, start)
	require.NoError(t, model.CreateStandingOrder(ctx, db, o))

	due, err := model.ListDueStandingOrders(ctx, db, start, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, o.ID, due[0].ID)

	due, err = model.ListDueStandingOrders(ctx, db, start.AddDate(0, 0, -1), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	next := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, model.AdvanceStandingOrder(ctx, db, o.ID, start, 1, next, models.StandingOrderActive, time.Now()))

	err = model.AdvanceStandingOrder(ctx, db, o.ID, start, 2, next, models.StandingOrderActive, time.Now())
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate, "stale expected date")

	_, err = model.GetStandingOrderForOwner(ctx, db, o.ID, "owner-2")
	assert.ErrorIs(t, err, models.ErrNotFound, "destination owner does not own the order")

	require.NoError(t, model.ChangeStandingOrderStatus(ctx, db, o.ID, model.StatusChange{
		From: models.StandingOrderActive, To: models.StandingOrderCancelled,
	}, time.Now()))

	_, err = db.Exec(`UPDATE standing_orders SET status = 'active' WHERE id = ?`, o.ID)
	assert.Error(t, err, "terminal orders are read-only")

	got, err := model.GetStandingOrderForOwner(ctx, db, o.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderCancelled, got.Status)
	assert.Equal(t, 1, got.ExecutionsCount)
	assert.Equal(t, next, got.NextExecutionDate)
}

func TestStandingOrderRejectsBothDestinations(t *testing.T) {
	db := testutil.NewTestDB(t)
	src := testutil.SeedAccount(t, db, "owner-1", "USD", "100")
	dst := testutil.SeedAccount(t, db, "owner-2", "USD", "0")

	o := newOrder(src.ID, dst.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o.ExternalAccountNumber = "EXT-1"
	assert.Error(t, model.CreateStandingOrder(context.Background(), db, o))
}

func TestRecordStandingOrderFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, db, "owner-1", "USD", "0")
	dst := testutil.SeedAccount(t, db, "owner-2", "USD", "0")
	o := newOrder(src.ID, dst.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, model.CreateStandingOrder(ctx, db, o))

	n, err := model.RecordStandingOrderFailure(ctx, db, o.ID, "insufficient funds", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = model.RecordStandingOrderFailure(ctx, db, o.ID, "insufficient funds", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := model.GetStandingOrder(ctx, db, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.NextExecutionDate, got.NextExecutionDate)
	assert.Equal(t, "insufficient funds", got.LastFailureReason)
}

func TestHoldings(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	acc := testutil.SeedAccount(t, db, "owner-1", "USD", "0")

	require.NoError(t, model.AdjustHolding(ctx, db, acc.ID, "ACME", decimal.RequireFromString("5"), time.Now()))
	require.NoError(t, model.AdjustHolding(ctx, db, acc.ID, "ACME", decimal.RequireFromString("-2"), time.Now()))

	err := model.AdjustHolding(ctx, db, acc.ID, "ACME", decimal.RequireFromString("-4"), time.Now())
	assert.ErrorIs(t, err, models.ErrInsufficientHoldings)

	qty, err := model.GetHolding(ctx, db, acc.ID, "ACME")
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.RequireFromString("3")))

	list, err := model.ListHoldings(ctx, db, acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ACME", list[0].Symbol)
}
