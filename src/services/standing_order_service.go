// backend/src/services/standing_order_service.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/schedule"
	"github.com/username/standingbank/backend/src/security/validation"
)

// StandingOrderService manages the lifecycle of standing orders on behalf of
// their owner. Execution belongs to the scheduler.
type StandingOrderService struct {
	db   *sql.DB
	sink audit.Sink
	now  func() time.Time
}

func NewStandingOrderService(db *sql.DB, sink audit.Sink, now func() time.Time) *StandingOrderService {
	if sink == nil {
		sink = audit.Discard{}
	}
	if now == nil {
		now = time.Now
	}
	return &StandingOrderService{db: db, sink: sink, now: now}
}

// Create validates in and stores a new active order.
func (s *StandingOrderService) Create(ctx context.Context, callerID string, in CreateStandingOrderInput) (*models.StandingOrder, error) {
	source, err := ownedAccount(ctx, s.db, callerID, in.FromAccountID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive {
		return nil, fmt.Errorf("account %s: %w", source.ID, models.ErrAccountInactive)
	}

	dest, err := resolveDestination(ctx, s.db, source, in.ToAccountID, in.ToAccountNumber, in.BeneficiaryName)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateAmount(in.Amount, source.Currency); err != nil {
		return nil, err
	}
	if !in.Frequency.Valid() {
		return nil, models.NewValidationError("frequency", "must be one of daily, weekly, monthly, yearly")
	}

	today := models.DateOf(s.now())
	start, err := validation.ValidateDateString(in.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	if start.Before(today) {
		return nil, models.NewValidationError("start_date", "cannot be in the past")
	}

	var end *time.Time
	if strings.TrimSpace(in.EndDate) != "" {
		e, err := validation.ValidateDateString(in.EndDate, "end_date")
		if err != nil {
			return nil, err
		}
		if !e.After(start) {
			return nil, models.NewValidationError("end_date", "must be after start_date")
		}
		end = &e
	}
	if in.MaxExecutions != nil && *in.MaxExecutions < 1 {
		return nil, models.NewValidationError("max_executions", "must be at least 1")
	}

	reference, err := cleanReference(in.Reference)
	if err != nil {
		return nil, err
	}
	description, err := validation.CleanText(in.Description, validation.MaxDescriptionLength, "description")
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.StandingOrder{
		ID:                    uuid.NewString(),
		SourceAccountID:       source.ID,
		DestAccountID:         dest.AccountID,
		ExternalAccountNumber: dest.ExternalAccountNumber,
		BeneficiaryName:       dest.BeneficiaryName,
		Amount:                in.Amount,
		Currency:              source.Currency,
		Frequency:             in.Frequency,
		StartDate:             start,
		EndDate:               end,
		MaxExecutions:         in.MaxExecutions,
		NextExecutionDate:     start,
		Status:                models.StandingOrderActive,
		Reference:             reference,
		Description:           description,
		CreatedBy:             callerID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := model.CreateStandingOrder(ctx, s.db, order); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Standing order created", "standingOrderID", order.ID, "frequency", order.Frequency, "startDate", in.StartDate)
	s.sink.LogTransaction(ctx, audit.ActionOrderCreated, order.ID, orderDetails(order, callerID))
	return order, nil
}

// Update changes the editable fields of a non-terminal order.
func (s *StandingOrderService) Update(ctx context.Context, callerID, orderID string, in UpdateStandingOrderInput) (*models.StandingOrder, error) {
	order, err := model.GetStandingOrderForOwner(ctx, s.db, orderID, callerID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("standing order %s is %s: %w", order.ID, order.Status, models.ErrTerminalState)
	}

	if in.Amount != nil {
		if err := models.ValidateAmount(*in.Amount, order.Currency); err != nil {
			return nil, err
		}
		order.Amount = *in.Amount
	}
	if in.BeneficiaryName != nil {
		name, err := validation.CleanText(*in.BeneficiaryName, validation.MaxBeneficiaryLength, "beneficiary_name")
		if err != nil {
			return nil, err
		}
		if order.IsExternal() && name == "" {
			return nil, models.NewValidationError("beneficiary_name", "is required for external accounts")
		}
		order.BeneficiaryName = name
	}
	if in.EndDate != nil {
		if strings.TrimSpace(*in.EndDate) == "" {
			order.EndDate = nil
		} else {
			e, err := validation.ValidateDateString(*in.EndDate, "end_date")
			if err != nil {
				return nil, err
			}
			if !e.After(order.NextExecutionDate) {
				return nil, models.NewValidationError("end_date", "must be after the next execution date %s", models.FormatDate(order.NextExecutionDate))
			}
			order.EndDate = &e
		}
	}
	if in.MaxExecutions != nil {
		if *in.MaxExecutions <= order.ExecutionsCount {
			return nil, models.NewValidationError("max_executions", "must be greater than the %d executions already made", order.ExecutionsCount)
		}
		v := *in.MaxExecutions
		order.MaxExecutions = &v
	}
	if in.Reference != nil {
		if order.Reference, err = cleanReference(*in.Reference); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if order.Description, err = validation.CleanText(*in.Description, validation.MaxDescriptionLength, "description"); err != nil {
			return nil, err
		}
	}

	if err := model.UpdateStandingOrderDetails(ctx, s.db, order, s.now().UTC()); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Standing order updated", "standingOrderID", order.ID)
	s.sink.LogTransaction(ctx, audit.ActionOrderUpdated, order.ID, orderDetails(order, callerID))
	return order, nil
}

// Toggle pauses an active order or resumes a paused one. A resumed order
// picks up at the first occurrence on or after today; missed occurrences are
// not paid.
func (s *StandingOrderService) Toggle(ctx context.Context, callerID, orderID string) (*models.StandingOrder, error) {
	order, err := model.GetStandingOrderForOwner(ctx, s.db, orderID, callerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	switch order.Status {
	case models.StandingOrderActive:
		change := model.StatusChange{From: models.StandingOrderActive, To: models.StandingOrderPaused}
		if err := model.ChangeStandingOrderStatus(ctx, s.db, order.ID, change, now); err != nil {
			return nil, err
		}
		s.sink.LogTransaction(ctx, audit.ActionOrderPaused, order.ID, orderDetails(order, callerID))

	case models.StandingOrderPaused:
		next, err := schedule.RollForward(order.NextExecutionDate, order.Frequency, models.DateOf(now))
		if err != nil {
			return nil, err
		}
		if order.EndDate != nil && !next.Before(*order.EndDate) {
			return nil, models.NewValidationError("end_date", "the order ends on %s and has no occurrence left; cancel it instead", models.FormatDate(*order.EndDate))
		}
		change := model.StatusChange{
			From:              models.StandingOrderPaused,
			To:                models.StandingOrderActive,
			NextExecutionDate: &next,
			ResetFailures:     true,
		}
		if err := model.ChangeStandingOrderStatus(ctx, s.db, order.ID, change, now); err != nil {
			return nil, err
		}
		details := orderDetails(order, callerID)
		details["next_execution_date"] = models.FormatDate(next)
		s.sink.LogTransaction(ctx, audit.ActionOrderResumed, order.ID, details)

	default:
		return nil, fmt.Errorf("standing order %s is %s: %w", order.ID, order.Status, models.ErrTerminalState)
	}

	logger.FromContext(ctx).Info("Standing order toggled", "standingOrderID", order.ID, "from", order.Status)
	return model.GetStandingOrder(ctx, s.db, order.ID)
}

// Cancel ends an order for good. Cancelling a cancelled order returns it unchanged.
func (s *StandingOrderService) Cancel(ctx context.Context, callerID, orderID string) (*models.StandingOrder, error) {
	order, err := model.GetStandingOrderForOwner(ctx, s.db, orderID, callerID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.StandingOrderCancelled:
		return order, nil
	case models.StandingOrderCompleted:
		return nil, fmt.Errorf("standing order %s is %s: %w", order.ID, order.Status, models.ErrTerminalState)
	}

	change := model.StatusChange{From: order.Status, To: models.StandingOrderCancelled}
	err = model.ChangeStandingOrderStatus(ctx, s.db, order.ID, change, s.now().UTC())
	if errors.Is(err, models.ErrConcurrentUpdate) {
		// lost to the scheduler or another request; report the state that won
		current, getErr := model.GetStandingOrder(ctx, s.db, order.ID)
		if getErr == nil && current.Status == models.StandingOrderCancelled {
			return current, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	logger.InfoFromContext(ctx, "Standing order cancelled", "standingOrderID", order.ID)
	s.sink.LogTransaction(ctx, audit.ActionOrderCancelled, order.ID, orderDetails(order, callerID))
	return model.GetStandingOrder(ctx, s.db, order.ID)
}

// Get returns one of the caller's orders.
func (s *StandingOrderService) Get(ctx context.Context, callerID, orderID string) (*models.StandingOrder, error) {
	return model.GetStandingOrderForOwner(ctx, s.db, orderID, callerID)
}

// List returns the caller's orders, newest first.
func (s *StandingOrderService) List(ctx context.Context, callerID string) ([]models.StandingOrder, error) {
	return model.ListStandingOrdersByOwner(ctx, s.db, callerID)
}

func cleanReference(raw string) (string, error) {
	ref, err := validation.CleanText(raw, validation.MaxReferenceLength, "reference")
	if err != nil {
		return "", err
	}
	if err := validation.ValidateStringNotEmpty(ref, "reference"); err != nil {
		return "", err
	}
	return ref, nil
}

func orderDetails(o *models.StandingOrder, actor string) map[string]any {
	d := map[string]any{
		"actor":             actor,
		"source_account_id": o.SourceAccountID,
		"amount":            o.Amount.String(),
		"currency":          o.Currency,
		"frequency":         string(o.Frequency),
		"status":            string(o.Status),
	}
	if o.DestAccountID != "" {
		d["dest_account_id"] = o.DestAccountID
	} else {
		d["external_account_number"] = o.ExternalAccountNumber
	}
	return d
}
