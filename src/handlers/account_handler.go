// backend/src/handlers/account_handler.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/services"
)

type AccountHandler struct {
	accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type openAccountRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Currency       string `json:"currency" validate:"required,len=3"`
	OverdraftLimit string `json:"overdraft_limit"`
}

func (h *AccountHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req openAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	overdraft := decimal.Zero
	if req.OverdraftLimit != "" {
		var err error
		if overdraft, err = decimal.NewFromString(req.OverdraftLimit); err != nil {
			writeServiceError(w, r, models.NewValidationError("overdraft_limit", "is not a decimal number"))
			return
		}
	}

	account, err := h.accounts.Open(r.Context(), callerID, services.OpenAccountInput{
		Name:           req.Name,
		Currency:       req.Currency,
		OverdraftLimit: overdraft,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, account, http.StatusCreated)
}

func (h *AccountHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	accounts, err := h.accounts.List(r.Context(), callerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, accounts, http.StatusOK)
}

func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, account, http.StatusOK)
}

func (h *AccountHandler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	limit, err := queryLimit(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	txns, err := h.accounts.Transactions(r.Context(), callerID, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, txns, http.StatusOK)
}

func (h *AccountHandler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	holdings, err := h.accounts.Holdings(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, holdings, http.StatusOK)
}
