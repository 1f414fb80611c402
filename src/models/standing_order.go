package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the recurrence of a standing order.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// StandingOrderStatus is the lifecycle state of a standing order.
type StandingOrderStatus string

const (
	StandingOrderActive    StandingOrderStatus = "active"
	StandingOrderPaused    StandingOrderStatus = "paused"
	StandingOrderCancelled StandingOrderStatus = "cancelled"
	StandingOrderCompleted StandingOrderStatus = "completed"
)

// IsTerminal reports whether no further mutation is allowed.
func (s StandingOrderStatus) IsTerminal() bool {
	return s == StandingOrderCancelled || s == StandingOrderCompleted
}

var standingOrderTransitions = map[StandingOrderStatus]map[StandingOrderStatus]bool{
	StandingOrderActive: {
		StandingOrderPaused:    true,
		StandingOrderCancelled: true,
		StandingOrderCompleted: true,
	},
	StandingOrderPaused: {
		StandingOrderActive:    true,
		StandingOrderCancelled: true,
	},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to StandingOrderStatus) bool {
	return standingOrderTransitions[from][to]
}

// StandingOrder is a recurring transfer instruction. Exactly one of
// DestAccountID or ExternalAccountNumber is set.
type StandingOrder struct {
	ID                    string              `json:"id"`
	SourceAccountID       string              `json:"source_account_id"`
	DestAccountID         string              `json:"dest_account_id,omitempty"`
	ExternalAccountNumber string              `json:"external_account_number,omitempty"`
	BeneficiaryName       string              `json:"beneficiary_name,omitempty"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              string              `json:"currency"`
	Frequency             Frequency           `json:"frequency"`
	StartDate             time.Time           `json:"-"`
	EndDate               *time.Time          `json:"-"`
	MaxExecutions         *int                `json:"max_executions,omitempty"`
	ExecutionsCount       int                 `json:"executions_count"`
	NextExecutionDate     time.Time           `json:"-"`
	Status                StandingOrderStatus `json:"status"`
	Reference             string              `json:"reference"`
	Description           string              `json:"description,omitempty"`
	ConsecutiveFailures   int                 `json:"consecutive_failures"`
	LastFailureReason     string              `json:"last_failure_reason,omitempty"`
	LastExecutedAt        *time.Time          `json:"last_executed_at,omitempty"`
	CreatedBy             string              `json:"created_by"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
	Version               int64               `json:"-"`
}

// IsExternal reports whether the order pays out of the bank.
func (o *StandingOrder) IsExternal() bool {
	return o.DestAccountID == ""
}

// MarshalJSON renders the calendar dates as YYYY-MM-DD.
func (o StandingOrder) MarshalJSON() ([]byte, error) {
	type alias StandingOrder
	out := struct {
		alias
		StartDate         string  `json:"start_date"`
		EndDate           *string `json:"end_date,omitempty"`
		NextExecutionDate string  `json:"next_execution_date"`
	}{
		alias:             alias(o),
		StartDate:         FormatDate(o.StartDate),
		NextExecutionDate: FormatDate(o.NextExecutionDate),
	}
	if o.EndDate != nil {
		s := FormatDate(*o.EndDate)
		out.EndDate = &s
	}
	return json.Marshal(out)
}
