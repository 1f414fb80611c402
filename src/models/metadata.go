package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Metadata is the structured payload attached to a transaction. Each
// transaction type has exactly one concrete variant.
type Metadata interface {
	MetadataKind() TransactionType
	Validate() error
}

// TransferMetadata accompanies manual transfers. External destinations are
// described here because the transaction has no destination account.
type TransferMetadata struct {
	ExternalAccountNumber string `json:"external_account_number,omitempty"`
	BeneficiaryName       string `json:"beneficiary_name,omitempty"`
	InitiatedBy           string `json:"initiated_by,omitempty"`
}

func (TransferMetadata) MetadataKind() TransactionType { return TransactionTransfer }

func (m TransferMetadata) Validate() error {
	if m.ExternalAccountNumber != "" && strings.TrimSpace(m.BeneficiaryName) == "" {
		return NewValidationError("beneficiary_name", "is required for external transfers")
	}
	return nil
}

// StandingOrderMetadata links an execution back to its order.
type StandingOrderMetadata struct {
	StandingOrderID       string `json:"standing_order_id"`
	ExecutionDate         string `json:"execution_date"`
	ExecutionNumber       int    `json:"execution_number"`
	ExternalAccountNumber string `json:"external_account_number,omitempty"`
	BeneficiaryName       string `json:"beneficiary_name,omitempty"`
}

func (StandingOrderMetadata) MetadataKind() TransactionType { return TransactionStandingOrder }

func (m StandingOrderMetadata) Validate() error {
	if m.StandingOrderID == "" {
		return NewValidationError("standing_order_id", "is required")
	}
	if _, err := ParseDate(m.ExecutionDate); err != nil {
		return NewValidationError("execution_date", "%v", err)
	}
	if m.ExternalAccountNumber != "" && strings.TrimSpace(m.BeneficiaryName) == "" {
		return NewValidationError("beneficiary_name", "is required for external destinations")
	}
	return nil
}

// StockTradeMetadata records the trade behind a stock settlement.
type StockTradeMetadata struct {
	Side     TransactionType `json:"side"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Gross    decimal.Decimal `json:"gross"`
	Fee      decimal.Decimal `json:"fee"`
}

func (m StockTradeMetadata) MetadataKind() TransactionType { return m.Side }

func (m StockTradeMetadata) Validate() error {
	if m.Side != TransactionStockBuy && m.Side != TransactionStockSell {
		return NewValidationError("side", "must be stock_buy or stock_sell")
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return NewValidationError("symbol", "is required")
	}
	if !m.Quantity.IsPositive() {
		return NewValidationError("quantity", "must be greater than zero")
	}
	if !m.Price.IsPositive() {
		return NewValidationError("price", "must be greater than zero")
	}
	if m.Fee.IsNegative() {
		return NewValidationError("fee", "cannot be negative")
	}
	return nil
}

// CashMetadata accompanies teller deposits and withdrawals.
type CashMetadata struct {
	Direction TransactionType `json:"direction"`
	Channel   string          `json:"channel,omitempty"`
	Note      string          `json:"note,omitempty"`
}

func (m CashMetadata) MetadataKind() TransactionType { return m.Direction }

func (m CashMetadata) Validate() error {
	if m.Direction != TransactionDeposit && m.Direction != TransactionWithdrawal {
		return NewValidationError("direction", "must be deposit or withdrawal")
	}
	return nil
}

type metadataEnvelope struct {
	Kind TransactionType `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeMetadata serializes m as a {"kind", "data"} envelope. A nil m encodes to nil.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s metadata: %w", m.MetadataKind(), err)
	}
	return json.Marshal(metadataEnvelope{Kind: m.MetadataKind(), Data: data})
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env metadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode metadata envelope: %w", err)
	}

	var m Metadata
	switch env.Kind {
	case TransactionTransfer:
		var v TransferMetadata
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode transfer metadata: %w", err)
		}
		m = v
	case TransactionStandingOrder:
		var v StandingOrderMetadata
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode standing order metadata: %w", err)
		}
		m = v
	case TransactionStockBuy, TransactionStockSell:
		var v StockTradeMetadata
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode stock trade metadata: %w", err)
		}
		m = v
	case TransactionDeposit, TransactionWithdrawal:
		var v CashMetadata
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("decode cash metadata: %w", err)
		}
		m = v
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", env.Kind)
	}

	if m.MetadataKind() != env.Kind {
		return nil, fmt.Errorf("metadata kind %q does not match payload kind %q", env.Kind, m.MetadataKind())
	}
	return m, nil
}
