// Package compliance owns the invoice lifecycle: the state machine, its
// immutable transition history, and the issue pipeline orchestration.
package compliance

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransitionRecord is one row of the append-only audit trail. Rows are
// inserted on every state change and never updated or deleted.
type TransitionRecord struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID  snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	FromStatus string            `gorm:"type:text;not null" json:"from_status"`
	ToStatus   string            `gorm:"type:text;not null" json:"to_status"`
	Reason     string            `gorm:"type:text;not null;default:''" json:"reason"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TransitionRecord) TableName() string { return "compliance_transitions" }
