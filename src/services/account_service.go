// backend/src/services/account_service.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/security/validation"
)

const (
	accountNumberPrefix      = "SB"
	maxAccountNameLength     = 100
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 500
)

// AccountService opens accounts and serves read access scoped to their owner.
type AccountService struct {
	db  *sql.DB
	now func() time.Time
}

func NewAccountService(db *sql.DB, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{db: db, now: now}
}

// OpenAccountInput describes a new account.
type OpenAccountInput struct {
	Name           string
	Currency       string
	OverdraftLimit decimal.Decimal
}

// Open creates an empty, active account owned by callerID.
func (s *AccountService) Open(ctx context.Context, callerID string, in OpenAccountInput) (*models.Account, error) {
	currency, err := models.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	name, err := validation.CleanText(in.Name, maxAccountNameLength, "name")
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStringNotEmpty(name, "name"); err != nil {
		return nil, err
	}
	if in.OverdraftLimit.IsNegative() {
		return nil, models.NewValidationError("overdraft_limit", "cannot be negative")
	}

	now := s.now().UTC()
	a := &models.Account{
		ID:             uuid.NewString(),
		OwnerID:        callerID,
		AccountNumber:  newAccountNumber(),
		Name:           name,
		Currency:       currency,
		Balance:        decimal.Zero,
		OverdraftLimit: models.RoundToCurrency(in.OverdraftLimit, currency),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := model.CreateAccount(ctx, s.db, a); err != nil {
		return nil, err
	}
	logger.InfoFromContext(ctx, "Account opened", "accountID", a.ID, "currency", a.Currency)
	return a, nil
}

func newAccountNumber() string {
	return accountNumberPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// List returns the caller's accounts.
func (s *AccountService) List(ctx context.Context, callerID string) ([]models.Account, error) {
	return model.ListAccountsByOwner(ctx, s.db, callerID)
}

// Get returns one of the caller's accounts.
func (s *AccountService) Get(ctx context.Context, callerID, accountID string) (*models.Account, error) {
	return ownedAccount(ctx, s.db, callerID, accountID)
}

// Transactions lists the newest movements touching one of the caller's accounts.
func (s *AccountService) Transactions(ctx context.Context, callerID, accountID string, limit int) ([]models.Transaction, error) {
	if _, err := ownedAccount(ctx, s.db, callerID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	return model.ListTransactionsByAccount(ctx, s.db, accountID, limit)
}

// Holdings lists the stock positions held against one of the caller's accounts.
func (s *AccountService) Holdings(ctx context.Context, callerID, accountID string) ([]models.StockHolding, error) {
	if _, err := ownedAccount(ctx, s.db, callerID, accountID); err != nil {
		return nil, err
	}
	return model.ListHoldings(ctx, s.db, accountID)
}

// ownedAccount loads accountID and hides it from anyone but its owner.
func ownedAccount(ctx context.Context, db model.DBTX, callerID, accountID string) (*models.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, models.NewValidationError("account_id", "is required")
	}
	a, err := model.GetAccountByID(ctx, db, accountID)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != callerID {
		return nil, fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
	}
	return a, nil
}

// destination is a resolved payee: an internal account or an external number.
type destination struct {
	AccountID             string
	ExternalAccountNumber string
	BeneficiaryName       string
}

// resolveDestination turns the caller's payee fields into a destination.
// Exactly one of toAccountID and toAccountNumber must be given. A number that
// matches an account of this bank is internal; any other number is external
// and needs a beneficiary name.
func resolveDestination(ctx context.Context, db model.DBTX, source *models.Account, toAccountID, toAccountNumber, beneficiary string) (destination, error) {
	toAccountID = strings.TrimSpace(toAccountID)
	toAccountNumber = validation.NormalizeAccountNumber(toAccountNumber)

	name, err := validation.CleanText(beneficiary, validation.MaxBeneficiaryLength, "beneficiary_name")
	if err != nil {
		return destination{}, err
	}

	switch {
	case toAccountID == "" && toAccountNumber == "":
		return destination{}, models.NewValidationError("to_account_id", "either to_account_id or to_account_number is required")
	case toAccountID != "" && toAccountNumber != "":
		return destination{}, models.NewValidationError("to_account_id", "cannot be combined with to_account_number")
	}

	var dest *models.Account
	if toAccountID != "" {
		if dest, err = model.GetAccountByID(ctx, db, toAccountID); err != nil {
			return destination{}, err
		}
	} else {
		if err := validation.ValidateAccountNumber(toAccountNumber, "to_account_number"); err != nil {
			return destination{}, err
		}
		dest, err = model.GetAccountByNumber(ctx, db, toAccountNumber)
		if errors.Is(err, models.ErrNotFound) {
			if name == "" {
				return destination{}, models.NewValidationError("beneficiary_name", "is required for external accounts")
			}
			return destination{ExternalAccountNumber: toAccountNumber, BeneficiaryName: name}, nil
		}
		if err != nil {
			return destination{}, err
		}
	}

	if dest.ID == source.ID {
		return destination{}, models.NewValidationError("to_account_id", "must differ from the source account")
	}
	if dest.Currency != source.Currency {
		return destination{}, fmt.Errorf("%w: destination holds %s, source holds %s", models.ErrCurrencyMismatch, dest.Currency, source.Currency)
	}
	return destination{AccountID: dest.ID, BeneficiaryName: name}, nil
}
