package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataEnvelope_PreservesVariant(t *testing.T) {
	trade := StockTradeMetadata{
		Side:     TransactionStockSell,
		Symbol:   "ACME",
		Quantity: decimal.RequireFromString("3"),
		Price:    decimal.RequireFromString("12.50"),
		Gross:    decimal.RequireFromString("37.50"),
		Fee:      decimal.RequireFromString("1.00"),
	}

	raw, err := EncodeMetadata(trade)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"stock_sell"`)

	decoded, err := DecodeMetadata(raw)
	require.NoError(t, err)
	got, ok := decoded.(StockTradeMetadata)
	require.True(t, ok, "expected StockTradeMetadata, got %T", decoded)
	assert.Equal(t, TransactionStockSell, got.MetadataKind())
	assert.True(t, got.Price.Equal(trade.Price))
}

func TestDecodeMetadata_RejectsUnknownKind(t *testing.T) {
	_, err := DecodeMetadata([]byte(`{"kind":"loan","data":{}}`))
	assert.Error(t, err)
}

func TestDecodeMetadata_RejectsKindMismatch(t *testing.T) {
	_, err := DecodeMetadata([]byte(`{"kind":"stock_buy","data":{"side":"stock_sell","symbol":"X"}}`))
	assert.Error(t, err)
}

func TestDecodeMetadata_Empty(t *testing.T) {
	m, err := DecodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestTransferMetadata_ExternalNeedsBeneficiary(t *testing.T) {
	err := TransferMetadata{ExternalAccountNumber: "GB00EXT1"}.Validate()
	assert.ErrorIs(t, err, ErrValidation)

	assert.NoError(t, TransferMetadata{ExternalAccountNumber: "GB00EXT1", BeneficiaryName: "Jo"}.Validate())
}
