package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger movement.
type TransactionType string

const (
	TransactionTransfer      TransactionType = "transfer"
	TransactionStandingOrder TransactionType = "standing_order"
	TransactionStockBuy      TransactionType = "stock_buy"
	TransactionStockSell     TransactionType = "stock_sell"
	TransactionDeposit       TransactionType = "deposit"
	TransactionWithdrawal    TransactionType = "withdrawal"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTransfer, TransactionStandingOrder, TransactionStockBuy,
		TransactionStockSell, TransactionDeposit, TransactionWithdrawal:
		return true
	}
	return false
}

// TransactionStatus is the terminal outcome of a ledger attempt.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an immutable ledger record. Source or destination may be
// empty but never both.
type Transaction struct {
	ID              string            `json:"id"`
	Reference       string            `json:"reference"`
	SourceAccountID string            `json:"source_account_id,omitempty"`
	DestAccountID   string            `json:"dest_account_id,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Description     string            `json:"description,omitempty"`
	Metadata        Metadata          `json:"metadata,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
