package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/facturia-app/facturia/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice, lines []domain.InvoiceLine) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.Create(&lines).Error
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&inv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.IssuerID != 0 {
		stmt = stmt.Where("issuer_id = ?", filter.IssuerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var invoices []*domain.Invoice
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) SetNumber(ctx context.Context, db *gorm.DB, id snowflake.ID, series string, number int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET series = ?, number = ?, updated_at = ? WHERE id = ? AND number = 0`,
		series,
		number,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) SetSignedPayload(ctx context.Context, db *gorm.DB, id snowflake.ID, signedXML []byte, certificate string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET signed_xml = ?, signing_certificate = ?, updated_at = ? WHERE id = ?`,
		signedXML,
		certificate,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) SetLastError(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET last_error = ?, updated_at = ? WHERE id = ?`,
		lastError,
		time.Now().UTC(),
		id,
	).Error
}
