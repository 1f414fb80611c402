// backend/src/services/transfer_service.go
package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/ledger"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/security/validation"
)

// Ledger is the part of the ledger engine the services drive.
type Ledger interface {
	Execute(ctx context.Context, req ledger.Request) (*models.Transaction, error)
	ExecuteWithHooks(ctx context.Context, req ledger.Request, hooks ledger.Hooks) (*models.Transaction, error)
}

// TransferService runs customer-initiated money movements.
type TransferService struct {
	db     *sql.DB
	ledger Ledger
}

func NewTransferService(db *sql.DB, l Ledger) *TransferService {
	return &TransferService{db: db, ledger: l}
}

// Transfer moves money from one of the caller's accounts to an internal
// account or an external account number. With an idempotency key a repeated
// request returns the original transaction and replayed is true.
func (s *TransferService) Transfer(ctx context.Context, callerID string, in TransferInput) (txn *models.Transaction, replayed bool, err error) {
	if err := validation.ValidateIdempotencyKey(in.IdempotencyKey); err != nil {
		return nil, false, err
	}
	source, err := ownedAccount(ctx, s.db, callerID, in.FromAccountID)
	if err != nil {
		return nil, false, err
	}
	dest, err := resolveDestination(ctx, s.db, source, in.ToAccountID, in.ToAccountNumber, in.BeneficiaryName)
	if err != nil {
		return nil, false, err
	}
	description, err := validation.CleanText(in.Description, validation.MaxDescriptionLength, "description")
	if err != nil {
		return nil, false, err
	}

	txn, err = s.ledger.Execute(ctx, ledger.Request{
		SourceAccountID: source.ID,
		DestAccountID:   dest.AccountID,
		Amount:          in.Amount,
		Currency:        source.Currency,
		Type:            models.TransactionTransfer,
		Description:     description,
		IdempotencyKey:  scopedKey("transfer", callerID, in.IdempotencyKey),
		Metadata: models.TransferMetadata{
			ExternalAccountNumber: dest.ExternalAccountNumber,
			BeneficiaryName:       dest.BeneficiaryName,
			InitiatedBy:           callerID,
		},
	})
	if errors.Is(err, models.ErrDuplicateOperation) {
		logger.FromContext(ctx).Info("Transfer replayed", "reference", txn.Reference)
		return txn, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return txn, false, nil
}

// Deposit credits one of the caller's accounts with cash.
func (s *TransferService) Deposit(ctx context.Context, callerID, accountID string, amount decimal.Decimal, note, idempotencyKey string) (*models.Transaction, bool, error) {
	return s.cash(ctx, callerID, accountID, models.TransactionDeposit, amount, note, idempotencyKey)
}

// Withdraw debits one of the caller's accounts for cash.
func (s *TransferService) Withdraw(ctx context.Context, callerID, accountID string, amount decimal.Decimal, note, idempotencyKey string) (*models.Transaction, bool, error) {
	return s.cash(ctx, callerID, accountID, models.TransactionWithdrawal, amount, note, idempotencyKey)
}

func (s *TransferService) cash(ctx context.Context, callerID, accountID string, direction models.TransactionType,
	amount decimal.Decimal, note, idempotencyKey string) (*models.Transaction, bool, error) {
	if err := validation.ValidateIdempotencyKey(idempotencyKey); err != nil {
		return nil, false, err
	}
	account, err := ownedAccount(ctx, s.db, callerID, accountID)
	if err != nil {
		return nil, false, err
	}
	note, err = validation.CleanText(note, validation.MaxDescriptionLength, "note")
	if err != nil {
		return nil, false, err
	}

	req := ledger.Request{
		Amount:         amount,
		Currency:       account.Currency,
		Type:           direction,
		Description:    note,
		IdempotencyKey: scopedKey(string(direction), callerID, idempotencyKey),
		Metadata:       models.CashMetadata{Direction: direction, Channel: "api", Note: note},
	}
	if direction == models.TransactionDeposit {
		req.DestAccountID = account.ID
	} else {
		req.SourceAccountID = account.ID
	}

	txn, err := s.ledger.Execute(ctx, req)
	if errors.Is(err, models.ErrDuplicateOperation) {
		return txn, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return txn, false, nil
}

// scopedKey namespaces a client key by operation and caller so two callers
// can never collide on the same reference.
func scopedKey(operation, callerID, key string) string {
	if key == "" {
		return ""
	}
	return operation + ":" + callerID + ":" + key
}
