package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/testutil"
)

func TestCreateStandingOrderInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")

	order, err := f.standingOrders().Create(ctx, "alice", CreateStandingOrderInput{
		FromAccountID: src.ID,
		ToAccountID:   dst.ID,
		Amount:        decimal.RequireFromString("50.00"),
		Frequency:     models.FrequencyMonthly,
		StartDate:     f.inDays(5),
		Reference:     "  <b>Rent</b> March ",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StandingOrderActive, order.Status)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, dst.ID, order.DestAccountID)
	assert.Equal(t, order.StartDate, order.NextExecutionDate)
	assert.Equal(t, "Rent March", order.Reference)
	assert.Equal(t, 0, order.ExecutionsCount)
	assert.Equal(t, 1, f.sink.Count(audit.ActionOrderCreated))

	stored, err := model.GetStandingOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, f.inDays(5), models.FormatDate(stored.NextExecutionDate))
}

func TestCreateStandingOrderResolvesAccountNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00", testutil.WithNumber("SBINTERNAL0001"))

	internal, err := f.standingOrders().Create(ctx, "alice", CreateStandingOrderInput{
		FromAccountID:   src.ID,
		ToAccountNumber: "sb internal 0001",
		Amount:          decimal.RequireFromString("10.00"),
		Frequency:       models.FrequencyWeekly,
		StartDate:       f.today(),
		Reference:       "pocket money",
	})
	require.NoError(t, err)
	assert.Equal(t, dst.ID, internal.DestAccountID)
	assert.False(t, internal.IsExternal())

	external, err := f.standingOrders().Create(ctx, "alice", CreateStandingOrderInput{
		FromAccountID:   src.ID,
		ToAccountNumber: "DE89 3704 0044 0532 0130 00",
		BeneficiaryName: "Landlord GmbH",
		Amount:          decimal.RequireFromString("700.00"),
		Frequency:       models.FrequencyMonthly,
		StartDate:       f.today(),
		Reference:       "rent",
	})
	require.NoError(t, err)
	assert.True(t, external.IsExternal())
	assert.Equal(t, "DE89370400440532013000", external.ExternalAccountNumber)
	assert.Equal(t, "Landlord GmbH", external.BeneficiaryName)
}

func TestCreateStandingOrderRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	usd := testutil.SeedAccount(t, f.db, "bob", "USD", "0.00")
	foreign := testutil.SeedAccount(t, f.db, "mallory", "EUR", "1000.00")
	closed := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00", testutil.Inactive())

	valid := func() CreateStandingOrderInput {
		return CreateStandingOrderInput{
			FromAccountID: src.ID,
			ToAccountID:   dst.ID,
			Amount:        decimal.RequireFromString("25.00"),
			Frequency:     models.FrequencyDaily,
			StartDate:     f.today(),
			Reference:     "savings",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CreateStandingOrderInput)
		wantErr error
	}{
		{"both destinations", func(in *CreateStandingOrderInput) { in.ToAccountNumber = "DE89370400440532013000" }, models.ErrValidation},
		{"no destination", func(in *CreateStandingOrderInput) { in.ToAccountID = "" }, models.ErrValidation},
		{"external without beneficiary", func(in *CreateStandingOrderInput) {
			in.ToAccountID = ""
			in.ToAccountNumber = "DE89370400440532013000"
		}, models.ErrValidation},
		{"same account", func(in *CreateStandingOrderInput) { in.ToAccountID = src.ID }, models.ErrValidation},
		{"currency mismatch", func(in *CreateStandingOrderInput) { in.ToAccountID = usd.ID }, models.ErrCurrencyMismatch},
		{"zero amount", func(in *CreateStandingOrderInput) { in.Amount = decimal.Zero }, models.ErrInvalidAmount},
		{"sub-cent amount", func(in *CreateStandingOrderInput) { in.Amount = decimal.RequireFromString("1.005") }, models.ErrInvalidAmount},
		{"unknown frequency", func(in *CreateStandingOrderInput) { in.Frequency = "hourly" }, models.ErrValidation},
		{"start in the past", func(in *CreateStandingOrderInput) { in.StartDate = f.inDays(-1) }, models.ErrValidation},
		{"malformed start", func(in *CreateStandingOrderInput) { in.StartDate = "10-03-2026" }, models.ErrValidation},
		{"end on start", func(in *CreateStandingOrderInput) { in.EndDate = in.StartDate }, models.ErrValidation},
		{"zero max executions", func(in *CreateStandingOrderInput) { in.MaxExecutions = intPtr(0) }, models.ErrValidation},
		{"missing reference", func(in *CreateStandingOrderInput) { in.Reference = "<i></i> " }, models.ErrValidation},
		{"someone else's account", func(in *CreateStandingOrderInput) { in.FromAccountID = foreign.ID }, models.ErrNotFound},
		{"inactive source", func(in *CreateStandingOrderInput) { in.FromAccountID = closed.ID }, models.ErrAccountInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid()
			tc.mutate(&in)
			_, err := f.standingOrders().Create(context.Background(), "alice", in)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	orders, err := f.standingOrders().List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func createDaily(t *testing.T, f *fixture, owner string, src, dst *models.Account, mutate ...func(*CreateStandingOrderInput)) *models.StandingOrder {
	t.Helper()
	in := CreateStandingOrderInput{
		FromAccountID: src.ID,
		ToAccountID:   dst.ID,
		Amount:        decimal.RequireFromString("5.00"),
		Frequency:     models.FrequencyDaily,
		StartDate:     f.today(),
		Reference:     "coffee fund",
	}
	for _, m := range mutate {
		m(&in)
	}
	o, err := f.standingOrders().Create(context.Background(), owner, in)
	require.NoError(t, err)
	return o
}

func TestUpdateStandingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst)

	amount := decimal.RequireFromString("7.50")
	updated, err := f.standingOrders().Update(ctx, "alice", order.ID, UpdateStandingOrderInput{
		Amount:        &amount,
		MaxExecutions: intPtr(3),
		EndDate:       strPtr(f.inDays(30)),
		Description:   strPtr("bigger cups"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))
	require.NotNil(t, updated.MaxExecutions)
	assert.Equal(t, 3, *updated.MaxExecutions)
	assert.Equal(t, "bigger cups", updated.Description)
	assert.Equal(t, 1, f.sink.Count(audit.ActionOrderUpdated))

	// pretend two executions happened
	require.NoError(t, model.AdvanceStandingOrder(ctx, f.db, order.ID, order.NextExecutionDate, 2,
		order.NextExecutionDate.AddDate(0, 0, 2), models.StandingOrderActive, f.clock.Now()))

	_, err = f.standingOrders().Update(ctx, "alice", order.ID, UpdateStandingOrderInput{MaxExecutions: intPtr(2)})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = f.standingOrders().Update(ctx, "alice", order.ID, UpdateStandingOrderInput{EndDate: strPtr(f.inDays(1))})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = f.standingOrders().Update(ctx, "bob", order.ID, UpdateStandingOrderInput{Description: strPtr("hijack")})
	require.ErrorIs(t, err, models.ErrNotFound)

	cleared, err := f.standingOrders().Update(ctx, "alice", order.ID, UpdateStandingOrderInput{EndDate: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.EndDate)
}

func TestToggleRollsForwardOnResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst, func(in *CreateStandingOrderInput) {
		in.Frequency = models.FrequencyWeekly
	})
	_, err := model.RecordStandingOrderFailure(ctx, f.db, order.ID, "insufficient funds", f.clock.Now())
	require.NoError(t, err)

	paused, err := f.standingOrders().Toggle(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderPaused, paused.Status)

	f.clock.addDays(17)
	resumed, err := f.standingOrders().Toggle(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderActive, resumed.Status)
	// weekly from day 0: day 21 is the first occurrence on or after day 17
	assert.Equal(t, f.inDays(4), models.FormatDate(resumed.NextExecutionDate))
	assert.Equal(t, 0, resumed.ConsecutiveFailures)

	assert.Equal(t, []string{audit.ActionOrderCreated, audit.ActionOrderPaused, audit.ActionOrderResumed}, f.sink.Actions(order.ID))
}

func TestResumeAfterEndDateIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst, func(in *CreateStandingOrderInput) {
		in.EndDate = f.inDays(3)
	})

	_, err := f.standingOrders().Toggle(ctx, "alice", order.ID)
	require.NoError(t, err)
	f.clock.addDays(5)

	_, err = f.standingOrders().Toggle(ctx, "alice", order.ID)
	require.ErrorIs(t, err, models.ErrValidation)

	cancelled, err := f.standingOrders().Cancel(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderCancelled, cancelled.Status)
}

func TestCancelIsTerminalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst)

	cancelled, err := f.standingOrders().Cancel(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderCancelled, cancelled.Status)

	again, err := f.standingOrders().Cancel(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StandingOrderCancelled, again.Status)
	assert.Equal(t, 1, f.sink.Count(audit.ActionOrderCancelled))

	_, err = f.standingOrders().Toggle(ctx, "alice", order.ID)
	require.ErrorIs(t, err, models.ErrTerminalState)

	_, err = f.standingOrders().Update(ctx, "alice", order.ID, UpdateStandingOrderInput{Description: strPtr("revive")})
	require.ErrorIs(t, err, models.ErrTerminalState)
}

func TestCancelCompletedOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst, func(in *CreateStandingOrderInput) {
		in.MaxExecutions = intPtr(1)
	})
	require.NoError(t, model.AdvanceStandingOrder(ctx, f.db, order.ID, order.NextExecutionDate, 1,
		order.NextExecutionDate, models.StandingOrderCompleted, f.clock.Now()))

	_, err := f.standingOrders().Cancel(ctx, "alice", order.ID)
	require.ErrorIs(t, err, models.ErrTerminalState)
}

func TestStandingOrdersAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	dst := testutil.SeedAccount(t, f.db, "bob", "EUR", "0.00")
	order := createDaily(t, f, "alice", src, dst)

	got, err := f.standingOrders().Get(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.standingOrders().Get(ctx, "bob", order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.standingOrders().Cancel(ctx, "bob", order.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	bobs, err := f.standingOrders().List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobs)
}
