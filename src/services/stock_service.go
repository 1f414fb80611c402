// backend/src/services/stock_service.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/ledger"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/security/validation"
)

const maxQuantityPlaces = 4

// StockFees is the brokerage fee schedule: a rate on the gross amount with a floor.
type StockFees struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal
}

// DefaultStockFees is 0.1% with a minimum of 1.00.
var DefaultStockFees = StockFees{
	Rate:    decimal.RequireFromString("0.001"),
	Minimum: decimal.RequireFromString("1.00"),
}

// StockService settles stock trades against cash accounts through the ledger.
// The cash movement and the holding change commit together.
type StockService struct {
	db     *sql.DB
	ledger Ledger
	quotes QuoteProvider
	sink   audit.Sink
	fees   StockFees
	now    func() time.Time
}

func NewStockService(db *sql.DB, l Ledger, quotes QuoteProvider, sink audit.Sink, fees StockFees, now func() time.Time) *StockService {
	if sink == nil {
		sink = audit.Discard{}
	}
	if now == nil {
		now = time.Now
	}
	return &StockService{db: db, ledger: l, quotes: quotes, sink: sink, fees: fees, now: now}
}

// Quote returns the current price of symbol.
func (s *StockService) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = validation.NormalizeSymbol(symbol)
	if err := validation.ValidateSymbol(symbol); err != nil {
		return models.Quote{}, err
	}
	return s.quotes.GetQuote(ctx, symbol)
}

// Buy debits gross plus fee from the account and adds the shares.
func (s *StockService) Buy(ctx context.Context, callerID string, in TradeInput) (*TradeResult, error) {
	return s.trade(ctx, callerID, models.TransactionStockBuy, in)
}

// Sell removes the shares and credits gross minus fee to the account.
func (s *StockService) Sell(ctx context.Context, callerID string, in TradeInput) (*TradeResult, error) {
	return s.trade(ctx, callerID, models.TransactionStockSell, in)
}

func (s *StockService) trade(ctx context.Context, callerID string, side models.TransactionType, in TradeInput) (*TradeResult, error) {
	log := logger.FromContext(ctx)

	if err := validation.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
		return nil, err
	}
	account, err := ownedAccount(ctx, s.db, callerID, in.AccountID)
	if err != nil {
		return nil, err
	}
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	quote, err := s.Quote(ctx, in.Symbol)
	if err != nil {
		return nil, err
	}
	if quote.Currency != account.Currency {
		return nil, fmt.Errorf("%w: %s trades in %s, account holds %s", models.ErrCurrencyMismatch, quote.Symbol, quote.Currency, account.Currency)
	}

	trade := s.price(side, quote, in.Quantity, account.Currency)
	req := ledger.Request{
		Amount:         trade.Gross.Add(trade.Fee),
		Currency:       account.Currency,
		Type:           side,
		Description:    fmt.Sprintf("%s %s %s @ %s", side, trade.Quantity.String(), trade.Symbol, trade.Price.String()),
		IdempotencyKey: scopedKey(string(side), callerID, in.IdempotencyKey),
		Metadata:       trade,
	}
	delta := in.Quantity
	if side == models.TransactionStockBuy {
		req.SourceAccountID = account.ID
	} else {
		net := trade.Gross.Sub(trade.Fee)
		if !net.IsPositive() {
			return nil, models.NewValidationError("quantity", "sale proceeds of %s do not cover the %s fee", trade.Gross.String(), trade.Fee.String())
		}
		req.Amount = net
		req.DestAccountID = account.ID
		delta = in.Quantity.Neg()
	}

	var holding decimal.Decimal
	hooks := ledger.Hooks{
		After: func(ctx context.Context, tx *sql.Tx, _ *models.Transaction) error {
			if err := model.AdjustHolding(ctx, tx, account.ID, trade.Symbol, delta, s.now().UTC()); err != nil {
				return err
			}
			var err error
			holding, err = model.GetHolding(ctx, tx, account.ID, trade.Symbol)
			return err
		},
	}
	if side == models.TransactionStockSell {
		hooks.Before = func(ctx context.Context, tx *sql.Tx) error {
			held, err := model.GetHolding(ctx, tx, account.ID, trade.Symbol)
			if err != nil {
				return err
			}
			if held.LessThan(in.Quantity) {
				return fmt.Errorf("%w: holding %s %s, selling %s", models.ErrInsufficientHoldings, held.String(), trade.Symbol, in.Quantity.String())
			}
			return nil
		}
	}

	txn, err := s.ledger.ExecuteWithHooks(ctx, req, hooks)
	if errors.Is(err, models.ErrDuplicateOperation) {
		return s.replayed(ctx, txn, account.ID)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Stock trade settled", "side", side, "symbol", trade.Symbol, "quantity", trade.Quantity.String(), "reference", txn.Reference)
	s.sink.LogTransaction(ctx, audit.ActionStockTradeSettled, txn.Reference, map[string]any{
		"account_id":     account.ID,
		"side":           string(side),
		"symbol":         trade.Symbol,
		"quantity":       trade.Quantity.String(),
		"price":          trade.Price.String(),
		"gross":          trade.Gross.String(),
		"fee":            trade.Fee.String(),
		"transaction_id": txn.ID,
	})
	return &TradeResult{Transaction: txn, Trade: trade, Holding: holding}, nil
}

// price computes gross and fee in the account's minor units.
func (s *StockService) price(side models.TransactionType, q models.Quote, quantity decimal.Decimal, currency string) models.StockTradeMetadata {
	gross := models.RoundToCurrency(q.Price.Mul(quantity), currency)
	fee := models.RoundToCurrency(gross.Mul(s.fees.Rate), currency)
	if minimum := models.RoundToCurrency(s.fees.Minimum, currency); fee.LessThan(minimum) {
		fee = minimum
	}
	return models.StockTradeMetadata{
		Side:     side,
		Symbol:   q.Symbol,
		Quantity: quantity,
		Price:    q.Price,
		Gross:    gross,
		Fee:      fee,
	}
}

func (s *StockService) replayed(ctx context.Context, txn *models.Transaction, accountID string) (*TradeResult, error) {
	trade, ok := txn.Metadata.(models.StockTradeMetadata)
	if !ok {
		return nil, fmt.Errorf("transaction %s carries %T metadata, not a stock trade", txn.ID, txn.Metadata)
	}
	holding, err := model.GetHolding(ctx, s.db, accountID, trade.Symbol)
	if err != nil {
		return nil, err
	}
	return &TradeResult{Transaction: txn, Trade: trade, Holding: holding, Replayed: true}, nil
}

func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return models.NewValidationError("quantity", "must be greater than zero")
	}
	if !q.Equal(q.Truncate(maxQuantityPlaces)) {
		return models.NewValidationError("quantity", "supports at most %d decimal places", maxQuantityPlaces)
	}
	return nil
}
