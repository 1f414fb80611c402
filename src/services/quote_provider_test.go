package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/standingbank/backend/src/models"
)

type countingProvider struct {
	calls int
	err   error
	quote models.Quote
}

func (p *countingProvider) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	p.calls++
	if p.err != nil {
		return models.Quote{}, p.err
	}
	q := p.quote
	q.Symbol = symbol
	return q, nil
}

func TestCachedQuoteProviderCaches(t *testing.T) {
	next := &countingProvider{quote: models.Quote{Price: decimal.RequireFromString("10.00"), Currency: "USD"}}
	p := NewCachedQuoteProvider(next, time.Minute, BreakerSettings{})

	for i := 0; i < 3; i++ {
		q, err := p.GetQuote(context.Background(), "ABC")
		require.NoError(t, err)
		assert.Equal(t, "ABC", q.Symbol)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCachedQuoteProviderOpensBreaker(t *testing.T) {
	next := &countingProvider{err: errors.New("upstream timeout")}
	p := NewCachedQuoteProvider(next, time.Minute, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.GetQuote(ctx, "ABC")
		require.ErrorIs(t, err, ErrQuoteUnavailable)
	}
	assert.Equal(t, "open", p.BreakerState())

	_, err := p.GetQuote(ctx, "ABC")
	require.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.Equal(t, 2, next.calls)
}

func TestUnknownSymbolDoesNotTripBreaker(t *testing.T) {
	static := NewStaticQuoteProvider(nil, nil)
	p := NewCachedQuoteProvider(static, time.Minute, BreakerSettings{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := p.GetQuote(context.Background(), "NONE")
		require.ErrorIs(t, err, models.ErrNotFound)
	}
	assert.Equal(t, "closed", p.BreakerState())
}

func TestLoadQuotesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"symbol": "brk.b", "price": "412.33", "currency": "usd"},
		{"symbol": "SHEL", "price": 27.5, "currency": "GBP"}
	]`), 0o600))

	quotes, err := LoadQuotesFile(path)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "USD", quotes["BRK.B"].Currency)
	assert.Equal(t, "412.33", quotes["BRK.B"].Price.String())

	require.NoError(t, os.WriteFile(path, []byte(`[{"symbol": "X", "price": "-1", "currency": "USD"}]`), 0o600))
	_, err = LoadQuotesFile(path)
	require.Error(t, err)
}
