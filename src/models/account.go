package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer money account. Balance is only ever changed by the ledger.
type Account struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	AccountNumber  string          `json:"account_number"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
	IsActive       bool            `json:"is_active"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Available is the amount that can still be debited: balance plus overdraft.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Add(a.OverdraftLimit)
}

// CanDebit reports whether amount can leave the account without breaching the overdraft limit.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Available().GreaterThanOrEqual(amount)
}
