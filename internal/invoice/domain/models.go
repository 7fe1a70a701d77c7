// Package domain contains persistence models for fiscal invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice compliance lifecycle states. Transitions
// between states are owned exclusively by the compliance state machine.
type InvoiceStatus string

const (
	StatusDraft        InvoiceStatus = "draft"
	StatusNumbered     InvoiceStatus = "numbered"
	StatusSigned       InvoiceStatus = "signed"
	StatusSubmitting   InvoiceStatus = "submitting"
	StatusAccepted     InvoiceStatus = "accepted"
	StatusRejected     InvoiceStatus = "rejected"
	StatusPendingRetry InvoiceStatus = "pending_retry"
	StatusVoided       InvoiceStatus = "voided"
)

// InvoiceType follows the Spanish fiscal classification.
type InvoiceType string

const (
	TypeCompleta      InvoiceType = "completa"
	TypeSimplificada  InvoiceType = "simplificada"
	TypeRectificativa InvoiceType = "rectificativa"
)

// Letter returns the single-letter code used in traceability records.
func (t InvoiceType) Letter() string {
	switch t {
	case TypeSimplificada:
		return "S"
	case TypeRectificativa:
		return "R"
	default:
		return "C"
	}
}

// Valid reports whether t is a known invoice type.
func (t InvoiceType) Valid() bool {
	switch t {
	case TypeCompleta, TypeSimplificada, TypeRectificativa:
		return true
	}
	return false
}

// Invoice represents a fiscal invoice. Monetary fields are decimal-exact;
// (issuer_id, series, number) is unique once a number has been reserved.
type Invoice struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	IssuerID snowflake.ID `gorm:"not null;index" json:"issuer_id"`

	Type   InvoiceType   `gorm:"column:invoice_type;type:text;not null;default:'completa'" json:"type"`
	Series string        `gorm:"type:text;not null;default:''" json:"series"`
	Number int64         `gorm:"not null;default:0" json:"number"`
	Status InvoiceStatus `gorm:"type:text;not null;default:'draft'" json:"status"`

	IssueDate time.Time  `gorm:"type:date;not null" json:"issue_date"`
	DueDate   *time.Time `gorm:"type:date" json:"due_date,omitempty"`

	IssuerName       string `gorm:"type:text;not null" json:"issuer_name"`
	IssuerTaxID      string `gorm:"type:text;not null" json:"issuer_tax_id"`
	IssuerAddress    string `gorm:"type:text;not null;default:''" json:"issuer_address"`
	RecipientName    string `gorm:"type:text;not null" json:"recipient_name"`
	RecipientTaxID   string `gorm:"type:text;not null" json:"recipient_tax_id"`
	RecipientAddress string `gorm:"type:text;not null;default:''" json:"recipient_address"`

	TaxableBase decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"taxable_base"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(9,4);not null" json:"tax_rate"`
	TaxAmount   decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"tax_amount"`
	Total       decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"total"`

	SignedXML          []byte `gorm:"type:bytea" json:"-"`
	SigningCertificate string `gorm:"type:text" json:"-"`
	LastError          string `gorm:"type:text;not null;default:''" json:"last_error"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Numbered reports whether a legal number has been reserved.
func (i *Invoice) Numbered() bool { return i.Number > 0 }

// InvoiceLine represents a line item on an invoice.
type InvoiceLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:numeric(9,4);not null" json:"tax_rate"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }
