package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturia-app/facturia/internal/invoice/domain"
)

func sampleInvoice() (*domain.Invoice, []domain.InvoiceLine) {
	inv := &domain.Invoice{
		ID:             snowflake.ID(1),
		IssuerID:       snowflake.ID(42),
		Type:           domain.TypeCompleta,
		Series:         "F",
		Number:         7,
		IssueDate:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		IssuerName:     "Gestiones del Sur SL",
		IssuerTaxID:    "B12345678",
		IssuerAddress:  "Calle Mayor 1, Sevilla",
		RecipientName:  "Cliente Ejemplo SA",
		RecipientTaxID: "A87654321",
		TaxableBase:    decimal.RequireFromString("1000.00"),
		TaxRate:        decimal.RequireFromString("21"),
		TaxAmount:      decimal.RequireFromString("210.00"),
		Total:          decimal.RequireFromString("1210.00"),
	}
	lines := []domain.InvoiceLine{
		{
			Description: "Servicios de consultoría",
			Quantity:    decimal.NewFromInt(10),
			UnitPrice:   decimal.RequireFromString("100.00"),
			TaxRate:     decimal.RequireFromString("21"),
		},
	}
	return inv, lines
}

func TestRenderProducesPDF(t *testing.T) {
	inv, lines := sampleInvoice()

	out, err := NewRenderer().Render(inv, lines, "RF|B12345678|20250115|F-000007|C|T1210.00", nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresNumber(t *testing.T) {
	inv, lines := sampleInvoice()
	inv.Number = 0

	_, err := NewRenderer().Render(inv, lines, "", nil)
	assert.Error(t, err)
}
