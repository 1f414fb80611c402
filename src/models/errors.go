package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain errors. Callers match them with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrDuplicateOperation   = errors.New("duplicate operation")
	ErrNotFound             = errors.New("not found")
	ErrTerminalState        = errors.New("standing order is in a terminal state")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConcurrentUpdate     = errors.New("concurrent update, retry the operation")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError carries the amount that was available when the debit was refused.
type InsufficientFundsError struct {
	AccountID string
	Available decimal.Decimal
	Requested decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	places, ok := CurrencyPlaces(e.Currency)
	if !ok {
		places = 2
	}
	return fmt.Sprintf("insufficient funds, available %s %s", e.Available.StringFixed(places), e.Currency)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
