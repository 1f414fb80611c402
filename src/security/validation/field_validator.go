// backend/src/security/validation/field_validator.go
package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
)

// ErrValidationFailed is the sentinel every validator here wraps.
var ErrValidationFailed = models.ErrValidation

const (
	DefaultMaxStringLength  = 255
	MaxReferenceLength      = 140
	MaxDescriptionLength    = 1024
	MaxBeneficiaryLength    = 140
	MaxAccountNumberLength  = 34
	MaxIdempotencyKeyLength = 128
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return models.NewValidationError(fieldName, "cannot be empty")
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return models.NewValidationError(fieldName, "exceeds maximum length of %d characters", maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return models.NewValidationError(fieldName, "('%s') is not in the expected format (%s)", s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidatePositiveDecimal parses s as a decimal that must be greater than zero.
func ValidatePositiveDecimal(s, fieldName string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return decimal.Zero, err
	}
	val, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, models.NewValidationError(fieldName, "('%s') is not a valid decimal number", s)
	}
	if !val.IsPositive() {
		logger.L.Warn("Non-positive value rejected", "field", fieldName, "value", trimmed)
		return decimal.Zero, models.NewValidationError(fieldName, "must be greater than zero")
	}
	return val, nil
}

// --- Date Validator ---

// ValidateDateString checks if a string is a valid date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(models.DateLayout, trimmed)
	if err != nil {
		return time.Time{}, models.NewValidationError(fieldName, "('%s') is not a valid date (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// --- Specific Format Validators ---

var (
	accountNumberRegex  = regexp.MustCompile(`^[A-Z0-9]{6,34}$`)
	symbolRegex         = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)
	idempotencyKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_:.\-]+$`)
)

// NormalizeAccountNumber strips spaces and upper-cases an account number or IBAN.
func NormalizeAccountNumber(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ValidateAccountNumber checks a normalized account number or IBAN.
func ValidateAccountNumber(s, fieldName string) error {
	if err := ValidateStringMaxLength(s, MaxAccountNumberLength, fieldName); err != nil {
		return err
	}
	return ValidateStringRegex(s, accountNumberRegex, fieldName, "6 to 34 letters or digits")
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateSymbol checks a normalized ticker symbol.
func ValidateSymbol(s string) error {
	return ValidateStringRegex(s, symbolRegex, "symbol", "1 to 10 letters, digits or dots")
}

// ValidateIdempotencyKey allows an empty key; a present one must be short and plain.
func ValidateIdempotencyKey(s string) error {
	if s == "" {
		return nil
	}
	if err := ValidateStringMaxLength(s, MaxIdempotencyKeyLength, "Idempotency-Key"); err != nil {
		return err
	}
	return ValidateStringRegex(s, idempotencyKeyRegex, "Idempotency-Key", "letters, digits, '_', ':', '.', '-'")
}
