package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an invoice does not exist.
var ErrNotFound = errors.New("invoice not found")

// ValidationError marks bad input data. It is always local, never retried,
// and surfaced to the caller immediately.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateArithmetic enforces the fiscal totals invariant:
// tax_amount == round2(base * rate / 100) and total == base + tax_amount.
func (i *Invoice) ValidateArithmetic() error {
	expectedTax := i.TaxableBase.Mul(i.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
	if !i.TaxAmount.Equal(expectedTax) {
		return NewValidationError("tax_amount",
			fmt.Sprintf("expected %s for base %s at rate %s, got %s",
				expectedTax, i.TaxableBase, i.TaxRate, i.TaxAmount))
	}
	expectedTotal := i.TaxableBase.Add(i.TaxAmount)
	if !i.Total.Equal(expectedTotal) {
		return NewValidationError("total",
			fmt.Sprintf("expected %s, got %s", expectedTotal, i.Total))
	}
	return nil
}

// ValidateMandatory checks the fields every canonical document requires.
func (i *Invoice) ValidateMandatory() error {
	if i.IssuerName == "" {
		return NewValidationError("issuer_name", "required")
	}
	if i.IssuerTaxID == "" {
		return NewValidationError("issuer_tax_id", "required")
	}
	if i.RecipientName == "" {
		return NewValidationError("recipient_name", "required")
	}
	if i.RecipientTaxID == "" {
		return NewValidationError("recipient_tax_id", "required")
	}
	if i.IssueDate.IsZero() {
		return NewValidationError("issue_date", "required")
	}
	if !i.Type.Valid() {
		return NewValidationError("type", "unknown invoice type")
	}
	return nil
}
