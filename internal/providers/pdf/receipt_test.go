package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	r, err := NewProvider().GenerateReceipt(context.Background(), ReceiptData{
		Issuer:        "County Revenue",
		TransactionID: "TRX-1",
		ServiceName:   "Water Bill",
		ServiceCode:   "WTR",
		Currency:      "KES",
		Amount:        "220.00",
		Fee:           "50.00",
		Total:         "270.00",
		Status:        "COMPLETED",
		Lines:         []ReceiptLine{{Label: "Reading", Value: "25"}},
	})
	require.NoError(t, err)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestGenerateReceiptRequiresTransaction(t *testing.T) {
	_, err := NewProvider().GenerateReceipt(context.Background(), ReceiptData{})
	assert.ErrorIs(t, err, ErrMissingTransaction)
}
