package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
)

// ErrInvalidTransition is returned when a requested state change is not in
// the allowed transition table, or when the invoice moved concurrently and
// no longer holds the expected source state. The invoice is left untouched.
var ErrInvalidTransition = errors.New("compliance: invalid state transition")

// allowed maps each status to the set of statuses reachable from it.
// Anything absent here is rejected.
var allowed = map[invoicedomain.InvoiceStatus][]invoicedomain.InvoiceStatus{
	invoicedomain.StatusDraft:        {invoicedomain.StatusNumbered},
	invoicedomain.StatusNumbered:     {invoicedomain.StatusSigned},
	invoicedomain.StatusSigned:       {invoicedomain.StatusSubmitting},
	invoicedomain.StatusSubmitting:   {invoicedomain.StatusAccepted, invoicedomain.StatusRejected, invoicedomain.StatusPendingRetry},
	invoicedomain.StatusPendingRetry: {invoicedomain.StatusSubmitting},
	invoicedomain.StatusAccepted:     {invoicedomain.StatusVoided},
	invoicedomain.StatusRejected:     {invoicedomain.StatusVoided},
	invoicedomain.StatusVoided:       {},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to invoicedomain.InvoiceStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine applies state transitions atomically and records every change in
// the append-only transition history.
type Machine struct {
	genID *snowflake.Node
}

// NewMachine constructs a state machine.
func NewMachine(genID *snowflake.Node) *Machine {
	return &Machine{genID: genID}
}

// Transition moves an invoice from one status to another with a
// compare-and-swap on the source status. When the invoice is not currently
// in the expected source state, or the transition is not allowed, it returns
// ErrInvalidTransition and writes nothing.
func (m *Machine) Transition(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, from, to invoicedomain.InvoiceStatus, reason string, metadata map[string]interface{}) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			UPDATE invoices
			SET status = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, string(to), invoiceID, string(from))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: invoice %s is not in state %s", ErrInvalidTransition, invoiceID, from)
		}

		record := TransitionRecord{
			ID:         m.genID.Generate(),
			InvoiceID:  invoiceID,
			FromStatus: string(from),
			ToStatus:   string(to),
			Reason:     reason,
			Metadata:   datatypes.JSONMap(metadata),
		}
		if record.Metadata == nil {
			record.Metadata = datatypes.JSONMap{}
		}
		return tx.Create(&record).Error
	})
}

// RecordCreation writes the genesis history entry for a new draft so the
// trail covers the full lifecycle from the first state on.
func (m *Machine) RecordCreation(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	record := TransitionRecord{
		ID:         m.genID.Generate(),
		InvoiceID:  invoiceID,
		FromStatus: "",
		ToStatus:   string(invoicedomain.StatusDraft),
		Reason:     "created",
		Metadata:   datatypes.JSONMap{},
	}
	return db.WithContext(ctx).Create(&record).Error
}

// History returns the full transition trail for an invoice, oldest first.
func (m *Machine) History(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]TransitionRecord, error) {
	var records []TransitionRecord
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
