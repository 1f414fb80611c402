// backend/src/handlers/standing_order_handler.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/services"
)

type StandingOrderHandler struct {
	orders *services.StandingOrderService
}

func NewStandingOrderHandler(orders *services.StandingOrderService) *StandingOrderHandler {
	return &StandingOrderHandler{orders: orders}
}

type createStandingOrderRequest struct {
	FromAccountID   string `json:"from_account_id" validate:"required"`
	ToAccountID     string `json:"to_account_id" validate:"required_without=ToAccountNumber,excluded_with=ToAccountNumber"`
	ToAccountNumber string `json:"to_account_number" validate:"max=42"`
	BeneficiaryName string `json:"beneficiary_name" validate:"max=140"`
	Amount          string `json:"amount" validate:"required,decimal_gt0"`
	Frequency       string `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	StartDate       string `json:"start_date" validate:"required,date"`
	EndDate         string `json:"end_date" validate:"omitempty,date"`
	MaxExecutions   *int   `json:"max_executions" validate:"omitempty,gte=1"`
	Reference       string `json:"reference" validate:"required,max=140"`
	Description     string `json:"description" validate:"max=1024"`
}

type updateStandingOrderRequest struct {
	Amount          *string `json:"amount" validate:"omitempty,decimal_gt0"`
	BeneficiaryName *string `json:"beneficiary_name" validate:"omitempty,max=140"`
	EndDate         *string `json:"end_date"`
	MaxExecutions   *int    `json:"max_executions" validate:"omitempty,gte=1"`
	Reference       *string `json:"reference" validate:"omitempty,max=140"`
	Description     *string `json:"description" validate:"omitempty,max=1024"`
}

func (h *StandingOrderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req createStandingOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeServiceError(w, r, models.NewValidationError("amount", "is not a decimal number"))
		return
	}

	order, err := h.orders.Create(r.Context(), callerID, services.CreateStandingOrderInput{
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		ToAccountNumber: req.ToAccountNumber,
		BeneficiaryName: req.BeneficiaryName,
		Amount:          amount,
		Frequency:       models.Frequency(req.Frequency),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MaxExecutions:   req.MaxExecutions,
		Reference:       req.Reference,
		Description:     req.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, order, http.StatusCreated)
}

func (h *StandingOrderHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())

	var req updateStandingOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in := services.UpdateStandingOrderInput{
		BeneficiaryName: req.BeneficiaryName,
		EndDate:         req.EndDate,
		MaxExecutions:   req.MaxExecutions,
		Reference:       req.Reference,
		Description:     req.Description,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeServiceError(w, r, models.NewValidationError("amount", "is not a decimal number"))
			return
		}
		in.Amount = &amount
	}

	order, err := h.orders.Update(r.Context(), callerID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, order, http.StatusOK)
}

func (h *StandingOrderHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	order, err := h.orders.Toggle(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("Standing order status toggled", "standingOrderID", order.ID, "status", order.Status)
	sendJSON(w, order, http.StatusOK)
}

func (h *StandingOrderHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	order, err := h.orders.Cancel(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, order, http.StatusOK)
}

func (h *StandingOrderHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	order, err := h.orders.Get(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, order, http.StatusOK)
}

func (h *StandingOrderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	callerID, _ := GetCallerIDFromContext(r.Context())
	orders, err := h.orders.List(r.Context(), callerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sendJSON(w, orders, http.StatusOK)
}
