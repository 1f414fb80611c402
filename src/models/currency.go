package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minor units per ISO 4217 code
var currencyPlaces = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CHF": 2,
	"CAD": 2,
	"AUD": 2,
	"SEK": 2,
	"NOK": 2,
	"DKK": 2,
	"PLN": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"BHD": 3,
}

// CurrencyPlaces returns the number of minor-unit digits for code.
func CurrencyPlaces(code string) (int32, bool) {
	p, ok := currencyPlaces[strings.ToUpper(code)]
	return p, ok
}

// NormalizeCurrency upper-cases code and checks it is a supported currency.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := currencyPlaces[c]; !ok {
		return "", NewValidationError("currency", "%q is not a supported currency", code)
	}
	return c, nil
}

// ValidateAmount checks that amount is positive and representable in the
// minor units of currency.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	places, ok := CurrencyPlaces(currency)
	if !ok {
		return NewValidationError("currency", "%q is not a supported currency", currency)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(places)) {
		return fmt.Errorf("%w: %s has more than %d decimal places for %s", ErrInvalidAmount, amount.String(), places, currency)
	}
	return nil
}

// RoundToCurrency rounds amount half-up to the minor units of currency.
func RoundToCurrency(amount decimal.Decimal, currency string) decimal.Decimal {
	places, ok := CurrencyPlaces(currency)
	if !ok {
		places = 2
	}
	return amount.Round(places)
}
