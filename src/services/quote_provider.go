// backend/src/services/quote_provider.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/security/validation"
)

// DefaultQuotes seeds the static provider when no quotes file is configured.
var DefaultQuotes = map[string]models.Quote{
	"AAPL":  {Symbol: "AAPL", Price: decimal.RequireFromString("189.50"), Currency: "USD"},
	"MSFT":  {Symbol: "MSFT", Price: decimal.RequireFromString("415.20"), Currency: "USD"},
	"NVDA":  {Symbol: "NVDA", Price: decimal.RequireFromString("121.75"), Currency: "USD"},
	"SAP":   {Symbol: "SAP", Price: decimal.RequireFromString("178.40"), Currency: "EUR"},
	"ASML":  {Symbol: "ASML", Price: decimal.RequireFromString("692.10"), Currency: "EUR"},
	"VOD.L": {Symbol: "VOD.L", Price: decimal.RequireFromString("0.72"), Currency: "GBP"},
}

// StaticQuoteProvider serves prices from an in-memory table. The table is
// fixed at construction.
type StaticQuoteProvider struct {
	quotes map[string]models.Quote
	now    func() time.Time
}

func NewStaticQuoteProvider(quotes map[string]models.Quote, now func() time.Time) *StaticQuoteProvider {
	if now == nil {
		now = time.Now
	}
	p := &StaticQuoteProvider{quotes: make(map[string]models.Quote, len(quotes)), now: now}
	for symbol, q := range quotes {
		p.quotes[validation.NormalizeSymbol(symbol)] = q
	}
	return p
}

// LoadQuotesFile reads a JSON array of {"symbol","price","currency"} objects.
func LoadQuotesFile(path string) (map[string]models.Quote, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quotes file %s: %w", path, err)
	}
	var entries []models.Quote
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse quotes file %s: %w", path, err)
	}
	quotes := make(map[string]models.Quote, len(entries))
	for i, q := range entries {
		q.Symbol = validation.NormalizeSymbol(q.Symbol)
		if err := validation.ValidateSymbol(q.Symbol); err != nil {
			return nil, fmt.Errorf("quotes file entry %d: %w", i, err)
		}
		if q.Currency, err = models.NormalizeCurrency(q.Currency); err != nil {
			return nil, fmt.Errorf("quotes file entry %d: %w", i, err)
		}
		if !q.Price.IsPositive() {
			return nil, fmt.Errorf("quotes file entry %d (%s): price must be positive", i, q.Symbol)
		}
		quotes[q.Symbol] = q
	}
	logger.L.Info("Loaded price quotes", "path", path, "count", len(quotes))
	return quotes, nil
}

func (p *StaticQuoteProvider) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	q, ok := p.quotes[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("quote for %s: %w", symbol, models.ErrNotFound)
	}
	q.AsOf = p.now().UTC()
	return q, nil
}

// CachedQuoteProvider fronts another provider with a short-lived cache and a
// circuit breaker. An open breaker is reported as ErrQuoteUnavailable.
type CachedQuoteProvider struct {
	next    QuoteProvider
	cache   *cache.Cache
	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the breaker of a CachedQuoteProvider.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewCachedQuoteProvider(next QuoteProvider, ttl time.Duration, bs BreakerSettings) *CachedQuoteProvider {
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "quote-provider",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// an unknown symbol is a valid answer, not a provider fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrNotFound)
		},
	}
	return &CachedQuoteProvider{
		next:    next,
		cache:   cache.New(ttl, 2*ttl),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *CachedQuoteProvider) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if cached, found := p.cache.Get(symbol); found {
		return cached.(models.Quote), nil
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.next.GetQuote(ctx, symbol)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.Quote{}, fmt.Errorf("quote for %s: %w", symbol, ErrQuoteUnavailable)
	}
	if errors.Is(err, models.ErrNotFound) {
		return models.Quote{}, err
	}
	if err != nil {
		logger.FromContext(ctx).Error("Quote provider failed", "symbol", symbol, "error", err)
		return models.Quote{}, fmt.Errorf("quote for %s: %w", symbol, ErrQuoteUnavailable)
	}
	q := res.(models.Quote)
	p.cache.Set(symbol, q, cache.DefaultExpiration)
	return q, nil
}

// BreakerState exposes the breaker state for health reporting.
func (p *CachedQuoteProvider) BreakerState() string {
	return p.breaker.State().String()
}
