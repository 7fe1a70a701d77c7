package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
)

func newMachineTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT PRIMARY KEY,
		issuer_id BIGINT NOT NULL,
		invoice_type TEXT NOT NULL DEFAULT 'completa',
		series TEXT NOT NULL DEFAULT '',
		number BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		issue_date DATE NOT NULL,
		due_date DATE,
		issuer_name TEXT NOT NULL,
		issuer_tax_id TEXT NOT NULL,
		issuer_address TEXT NOT NULL DEFAULT '',
		recipient_name TEXT NOT NULL,
		recipient_tax_id TEXT NOT NULL,
		recipient_address TEXT NOT NULL DEFAULT '',
		taxable_base NUMERIC NOT NULL,
		tax_rate NUMERIC NOT NULL,
		tax_amount NUMERIC NOT NULL,
		total NUMERIC NOT NULL,
		signed_xml BLOB,
		signing_certificate TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS compliance_transitions (
		id BIGINT PRIMARY KEY,
		invoice_id BIGINT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return db
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, status invoicedomain.InvoiceStatus) *invoicedomain.Invoice {
	inv := &invoicedomain.Invoice{
		ID:             node.Generate(),
		IssuerID:       snowflake.ID(42),
		Type:           invoicedomain.TypeCompleta,
		Status:         status,
		IssueDate:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		IssuerName:     "Gestiones del Sur SL",
		IssuerTaxID:    "B12345678",
		RecipientName:  "Cliente Ejemplo SA",
		RecipientTaxID: "A87654321",
		TaxableBase:    decimal.RequireFromString("1000.00"),
		TaxRate:        decimal.RequireFromString("21"),
		TaxAmount:      decimal.RequireFromString("210.00"),
		Total:          decimal.RequireFromString("1210.00"),
		CreatedAt:      time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

func TestTransitionRecordsHistory(t *testing.T) {
	db := newMachineTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	m := NewMachine(node)

	inv := seedInvoice(t, db, node, invoicedomain.StatusDraft)

	err = m.Transition(context.Background(), db, inv.ID, invoicedomain.StatusDraft, invoicedomain.StatusNumbered, "number_reserved", map[string]interface{}{
		"series": "F", "number": int64(7),
	})
	require.NoError(t, err)

	var got invoicedomain.Invoice
	require.NoError(t, db.Where("id = ?", inv.ID).Take(&got).Error)
	assert.Equal(t, invoicedomain.StatusNumbered, got.Status)

	history, err := m.History(context.Background(), db, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "draft", history[0].FromStatus)
	assert.Equal(t, "numbered", history[0].ToStatus)
	assert.Equal(t, "number_reserved", history[0].Reason)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	db := newMachineTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	m := NewMachine(node)

	inv := seedInvoice(t, db, node, invoicedomain.StatusDraft)

	// A draft cannot jump straight into submission.
	err = m.Transition(context.Background(), db, inv.ID, invoicedomain.StatusDraft, invoicedomain.StatusSubmitting, "skip", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = m.Transition(context.Background(), db, inv.ID, invoicedomain.StatusDraft, invoicedomain.StatusSigned, "skip", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var got invoicedomain.Invoice
	require.NoError(t, db.Where("id = ?", inv.ID).Take(&got).Error)
	assert.Equal(t, invoicedomain.StatusDraft, got.Status)

	history, err := m.History(context.Background(), db, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransitionFailsWhenSourceStateStale(t *testing.T) {
	db := newMachineTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	m := NewMachine(node)

	inv := seedInvoice(t, db, node, invoicedomain.StatusDraft)

	// Legal edge, wrong current state: the invoice is still a draft.
	err = m.Transition(context.Background(), db, inv.ID, invoicedomain.StatusNumbered, invoicedomain.StatusSigned, "sign", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	history, err := m.History(context.Background(), db, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestVoidedIsTerminal(t *testing.T) {
	assert.True(t, CanTransition(invoicedomain.StatusAccepted, invoicedomain.StatusVoided))
	assert.True(t, CanTransition(invoicedomain.StatusRejected, invoicedomain.StatusVoided))
	assert.False(t, CanTransition(invoicedomain.StatusVoided, invoicedomain.StatusAccepted))
	assert.False(t, CanTransition(invoicedomain.StatusVoided, invoicedomain.StatusSubmitting))
	assert.False(t, CanTransition(invoicedomain.StatusDraft, invoicedomain.StatusVoided))
}

func TestRetryCycleIsTheOnlyReentry(t *testing.T) {
	assert.True(t, CanTransition(invoicedomain.StatusPendingRetry, invoicedomain.StatusSubmitting))
	assert.False(t, CanTransition(invoicedomain.StatusPendingRetry, invoicedomain.StatusRejected))
	assert.False(t, CanTransition(invoicedomain.StatusRejected, invoicedomain.StatusSubmitting))
	assert.False(t, CanTransition(invoicedomain.StatusDraft, invoicedomain.StatusSubmitting))
}
