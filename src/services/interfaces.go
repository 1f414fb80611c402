// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
)

// Define common service errors
var (
	ErrQuoteUnavailable = errors.New("price quote unavailable")
)

// QuoteProvider defines the interface for fetching current market prices.
type QuoteProvider interface {
	// GetQuote returns the unit price for symbol. Unknown symbols are
	// reported with models.ErrNotFound.
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// CreateStandingOrderInput is the caller-supplied part of a new order.
type CreateStandingOrderInput struct {
	FromAccountID   string
	ToAccountID     string
	ToAccountNumber string
	BeneficiaryName string
	Amount          decimal.Decimal
	Frequency       models.Frequency
	StartDate       string
	EndDate         string
	MaxExecutions   *int
	Reference       string
	Description     string
}

// UpdateStandingOrderInput carries the fields a caller may change. Nil
// fields are left as they are.
type UpdateStandingOrderInput struct {
	Amount          *decimal.Decimal
	BeneficiaryName *string
	EndDate         *string
	MaxExecutions   *int
	Reference       *string
	Description     *string
}

// TransferInput describes a manual transfer.
type TransferInput struct {
	FromAccountID   string
	ToAccountID     string
	ToAccountNumber string
	BeneficiaryName string
	Amount          decimal.Decimal
	Description     string
	IdempotencyKey  string
}

// TradeInput describes a stock buy or sell against a cash account.
type TradeInput struct {
	AccountID      string
	Symbol         string
	Quantity       decimal.Decimal
	IdempotencyKey string
}

// TradeResult is the settled trade.
type TradeResult struct {
	Transaction *models.Transaction       `json:"transaction"`
	Trade       models.StockTradeMetadata `json:"trade"`
	Holding     decimal.Decimal           `json:"holding"`
	Replayed    bool                      `json:"-"`
}
