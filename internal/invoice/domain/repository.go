package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists invoices and their lines. Status changes go through
// the compliance state machine, never through this interface.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice, lines []InvoiceLine) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLine, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	SetNumber(ctx context.Context, db *gorm.DB, id snowflake.ID, series string, number int64) error
	SetSignedPayload(ctx context.Context, db *gorm.DB, id snowflake.ID, signedXML []byte, certificate string) error
	SetLastError(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error
}

// ListFilter narrows List results.
type ListFilter struct {
	IssuerID snowflake.ID
	Status   InvoiceStatus
	Limit    int
}
