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

func (f *fixture) stocks() *StockService {
	quotes := NewStaticQuoteProvider(DefaultQuotes, f.clock.Now)
	return NewStockService(f.db, f.engine, quotes, f.sink, DefaultStockFees, f.clock.Now)
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuyThenSellSettlesCashAndHoldings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, f.db, "alice", "USD", "10000.00")
	svc := f.stocks()

	// 10 x 189.50 = 1895.00, fee 0.1% = 1.895 -> 1.90
	bought, err := svc.Buy(ctx, "alice", TradeInput{AccountID: acct.ID, Symbol: "aapl", Quantity: qty("10")})
	require.NoError(t, err)
	assert.Equal(t, "1895.00", bought.Trade.Gross.StringFixed(2))
	assert.Equal(t, "1.90", bought.Trade.Fee.StringFixed(2))
	assert.Equal(t, "1896.90", bought.Transaction.Amount.StringFixed(2))
	assert.Equal(t, "10", bought.Holding.String())
	assert.Equal(t, "8103.10", testutil.Balance(t, f.db, acct.ID).StringFixed(2))

	// 4 x 189.50 = 758.00, fee 0.758 -> 0.76, net 757.24
	sold, err := svc.Sell(ctx, "alice", TradeInput{AccountID: acct.ID, Symbol: "AAPL", Quantity: qty("4")})
	require.NoError(t, err)
	assert.Equal(t, "757.24", sold.Transaction.Amount.StringFixed(2))
	assert.Equal(t, acct.ID, sold.Transaction.DestAccountID)
	assert.Equal(t, "6", sold.Holding.String())
	assert.Equal(t, "8860.34", testutil.Balance(t, f.db, acct.ID).StringFixed(2))

	holdings, err := NewAccountService(f.db, f.clock.Now).Holdings(ctx, "alice", acct.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, 2, f.sink.Count(audit.ActionStockTradeSettled))
}

func TestMinimumFeeApplies(t *testing.T) {
	f := newFixture(t)
	acct := testutil.SeedAccount(t, f.db, "alice", "GBP", "100.00")

	res, err := f.stocks().Buy(context.Background(), "alice", TradeInput{AccountID: acct.ID, Symbol: "VOD.L", Quantity: qty("10")})
	require.NoError(t, err)
	assert.Equal(t, "7.20", res.Trade.Gross.StringFixed(2))
	assert.Equal(t, "1.00", res.Trade.Fee.StringFixed(2))
	assert.Equal(t, "91.80", testutil.Balance(t, f.db, acct.ID).StringFixed(2))
}

func TestSellMoreThanHeldIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, f.db, "alice", "USD", "10000.00")
	svc := f.stocks()

	_, err := svc.Buy(ctx, "alice", TradeInput{AccountID: acct.ID, Symbol: "MSFT", Quantity: qty("2")})
	require.NoError(t, err)
	before := testutil.Balance(t, f.db, acct.ID)

	_, err = svc.Sell(ctx, "alice", TradeInput{AccountID: acct.ID, Symbol: "MSFT", Quantity: qty("2.5")})
	require.ErrorIs(t, err, models.ErrInsufficientHoldings)

	held, err := model.GetHolding(ctx, f.db, acct.ID, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "2", held.String())
	assert.True(t, before.Equal(testutil.Balance(t, f.db, acct.ID)))
}

func TestBuyWithoutFundsLeavesHoldingsUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, f.db, "alice", "USD", "100.00")

	_, err := f.stocks().Buy(ctx, "alice", TradeInput{AccountID: acct.ID, Symbol: "NVDA", Quantity: qty("1")})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	held, err := model.GetHolding(ctx, f.db, acct.ID, "NVDA")
	require.NoError(t, err)
	assert.True(t, held.IsZero())
	assert.Equal(t, "100", testutil.Balance(t, f.db, acct.ID).String())
}

func TestBuyReplayReturnsOriginalTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, f.db, "alice", "EUR", "5000.00")
	svc := f.stocks()
	in := TradeInput{AccountID: acct.ID, Symbol: "SAP", Quantity: qty("3"), IdempotencyKey: "order-77"}

	first, err := svc.Buy(ctx, "alice", in)
	require.NoError(t, err)
	second, err := svc.Buy(ctx, "alice", in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.True(t, first.Trade.Gross.Equal(second.Trade.Gross))
	assert.Equal(t, "3", second.Holding.String())
	assert.Equal(t, "4463.80", testutil.Balance(t, f.db, acct.ID).StringFixed(2))
}

func TestTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	usd := testutil.SeedAccount(t, f.db, "alice", "USD", "1000.00")
	eur := testutil.SeedAccount(t, f.db, "alice", "EUR", "1000.00")
	svc := f.stocks()

	tests := []struct {
		name    string
		in      TradeInput
		wantErr error
	}{
		{"zero quantity", TradeInput{AccountID: usd.ID, Symbol: "AAPL", Quantity: qty("0")}, models.ErrValidation},
		{"too precise quantity", TradeInput{AccountID: usd.ID, Symbol: "AAPL", Quantity: qty("0.00001")}, models.ErrValidation},
		{"bad symbol", TradeInput{AccountID: usd.ID, Symbol: "$$$", Quantity: qty("1")}, models.ErrValidation},
		{"unknown symbol", TradeInput{AccountID: usd.ID, Symbol: "ZZZZ", Quantity: qty("1")}, models.ErrNotFound},
		{"currency mismatch", TradeInput{AccountID: eur.ID, Symbol: "AAPL", Quantity: qty("1")}, models.ErrCurrencyMismatch},
		{"foreign account", TradeInput{AccountID: "nope", Symbol: "AAPL", Quantity: qty("1")}, models.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Buy(ctx, "alice", tc.in)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
