package ledger

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
)

// Request describes one ledger movement.
type Request struct {
	SourceAccountID string
	DestAccountID   string
	Amount          decimal.Decimal
	Currency        string
	Type            models.TransactionType
	Description     string
	// IdempotencyKey becomes the transaction reference. Empty means the
	// movement is never treated as a replay.
	IdempotencyKey string
	Metadata       models.Metadata
}

// Hooks let callers extend the atomic unit of a movement.
//
// Before runs inside the database transaction before any account is read.
// After runs once balances and the transaction row are written, before
// commit. An error from either rolls the whole movement back. Hooks must use
// tx, never the engine's *sql.DB.
type Hooks struct {
	Before func(ctx context.Context, tx *sql.Tx) error
	After  func(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error
}

func (r *Request) validate() error {
	r.SourceAccountID = strings.TrimSpace(r.SourceAccountID)
	r.DestAccountID = strings.TrimSpace(r.DestAccountID)

	if !r.Type.Valid() {
		return models.NewValidationError("type", "%q is not a supported transaction type", r.Type)
	}
	currency, err := models.NormalizeCurrency(r.Currency)
	if err != nil {
		return err
	}
	r.Currency = currency

	if r.SourceAccountID == "" && r.DestAccountID == "" {
		return models.NewValidationError("account", "source or destination is required")
	}
	if r.SourceAccountID != "" && r.SourceAccountID == r.DestAccountID {
		return models.NewValidationError("dest_account_id", "must differ from the source account")
	}
	if err := models.ValidateAmount(r.Amount, r.Currency); err != nil {
		return err
	}
	if err := r.validateShape(); err != nil {
		return err
	}
	if r.Metadata != nil {
		if r.Metadata.MetadataKind() != r.Type {
			return models.NewValidationError("metadata", "%s metadata cannot describe a %s transaction", r.Metadata.MetadataKind(), r.Type)
		}
		if err := r.Metadata.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateShape checks which sides of the movement the type allows.
func (r *Request) validateShape() error {
	hasSource, hasDest := r.SourceAccountID != "", r.DestAccountID != ""

	switch r.Type {
	case models.TransactionDeposit, models.TransactionStockSell:
		if hasSource || !hasDest {
			return models.NewValidationError("account", "%s credits a destination account only", r.Type)
		}
	case models.TransactionWithdrawal, models.TransactionStockBuy:
		if !hasSource || hasDest {
			return models.NewValidationError("account", "%s debits a source account only", r.Type)
		}
	case models.TransactionTransfer, models.TransactionStandingOrder:
		if !hasSource {
			return models.NewValidationError("source_account_id", "is required for %s", r.Type)
		}
		if !hasDest && externalAccount(r.Metadata) == "" {
			return models.NewValidationError("dest_account_id", "internal destination or external account metadata is required")
		}
	}

	switch r.Type {
	case models.TransactionStockBuy, models.TransactionStockSell, models.TransactionStandingOrder:
		if r.Metadata == nil {
			return models.NewValidationError("metadata", "is required for %s", r.Type)
		}
	}
	return nil
}

func externalAccount(m models.Metadata) string {
	switch v := m.(type) {
	case models.TransferMetadata:
		return v.ExternalAccountNumber
	case models.StandingOrderMetadata:
		return v.ExternalAccountNumber
	}
	return ""
}
