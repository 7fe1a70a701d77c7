package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"time"
)

// CreateInvoiceRequest carries the fields needed to open a draft.
type CreateInvoiceRequest struct {
	IssuerID         snowflake.ID
	Type             InvoiceType
	Series           string
	IssueDate        time.Time
	DueDate          *time.Time
	IssuerName       string
	IssuerTaxID      string
	IssuerAddress    string
	RecipientName    string
	RecipientTaxID   string
	RecipientAddress string
	TaxableBase      decimal.Decimal
	TaxRate          decimal.Decimal
	TaxAmount        decimal.Decimal
	Total            decimal.Decimal
	Lines            []CreateInvoiceLine
}

// CreateInvoiceLine is one line item of a draft.
type CreateInvoiceLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
}

// Service exposes invoice CRUD for drafts and read paths. Lifecycle
// progression lives in the compliance package.
type Service interface {
	CreateDraft(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetWithLines(ctx context.Context, id snowflake.ID) (*Invoice, []InvoiceLine, error)
	List(ctx context.Context, filter ListFilter) ([]*Invoice, error)
}
