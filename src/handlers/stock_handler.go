// backend/src/handlers/stock_handler.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/services"
)

type StockHandler struct {
	stocks *services.StockService
}

func NewStockHandler(stocks *services.StockService) *StockHandler {
	return &StockHandler{stocks: stocks}
}

type tradeRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Symbol    string `json:"symbol" validate:"required,max=10"`
	Quantity  string `json:"quantity" validate:"required,decimal_gt0"`
}

func (h *StockHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.stocks.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, quote, http.StatusOK)
}

func (h *StockHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.stocks.Buy)
}

func (h *StockHandler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.stocks.Sell)
}

func (h *StockHandler) handleTrade(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, callerID string, in services.TradeInput) (*services.TradeResult, error)) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeServiceError(w, r, models.NewValidationError("quantity", "is not a decimal number"))
		return
	}

	res, err := fn(r.Context(), callerID, services.TradeInput{
		AccountID:      req.AccountID,
		Symbol:         req.Symbol,
		Quantity:       quantity,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set(IdempotencyReplayHeader, "true")
		sendJSON(w, res, http.StatusOK)
		return
	}
	sendJSON(w, res, http.StatusCreated)
}
