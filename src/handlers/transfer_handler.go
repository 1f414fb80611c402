// backend/src/handlers/transfer_handler.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/services"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotencyReplayHeader = "X-Idempotency-Replay"
)

type TransferHandler struct {
	transfers *services.TransferService
}

func NewTransferHandler(transfers *services.TransferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type transferRequest struct {
	FromAccountID   string `json:"from_account_id" validate:"required"`
	ToAccountID     string `json:"to_account_id" validate:"required_without=ToAccountNumber,excluded_with=ToAccountNumber"`
	ToAccountNumber string `json:"to_account_number" validate:"max=42"`
	BeneficiaryName string `json:"beneficiary_name" validate:"max=140"`
	Amount          string `json:"amount" validate:"required,decimal_gt0"`
	Description     string `json:"description" validate:"max=1024"`
}

type cashRequest struct {
	Amount string `json:"amount" validate:"required,decimal_gt0"`
	Note   string `json:"note" validate:"max=1024"`
}

func (h *TransferHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeServiceError(w, r, models.NewValidationError("amount", "is not a decimal number"))
		return
	}

	txn, replayed, err := h.transfers.Transfer(r.Context(), callerID, services.TransferInput{
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		ToAccountNumber: req.ToAccountNumber,
		BeneficiaryName: req.BeneficiaryName,
		Amount:          amount,
		Description:     req.Description,
		IdempotencyKey:  r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendTransaction(w, txn, replayed)
}

func (h *TransferHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleCash(w, r, h.transfers.Deposit)
}

func (h *TransferHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleCash(w, r, h.transfers.Withdraw)
}

type cashFunc = func(ctx context.Context, callerID, accountID string, amount decimal.Decimal, note, key string) (*models.Transaction, bool, error)

func (h *TransferHandler) handleCash(w http.ResponseWriter, r *http.Request, fn cashFunc) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req cashRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeServiceError(w, r, models.NewValidationError("amount", "is not a decimal number"))
		return
	}

	txn, replayed, err := fn(r.Context(), callerID, chi.URLParam(r, "id"), amount, req.Note, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendTransaction(w, txn, replayed)
}

// sendTransaction answers 201 for a new movement and 200 for a replay.
func sendTransaction(w http.ResponseWriter, txn *models.Transaction, replayed bool) {
	if replayed {
		w.Header().Set(IdempotencyReplayHeader, "true")
		sendJSON(w, txn, http.StatusOK)
		return
	}
	sendJSON(w, txn, http.StatusCreated)
}
