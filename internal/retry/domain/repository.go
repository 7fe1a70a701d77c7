package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists submission attempts. Implementations must be safe for
// concurrent sweeps: claiming uses row locks, state changes are
// compare-and-swap on the current state.
type Repository interface {
	// Enqueue creates the (invoice, channel) attempt row, or re-arms an
	// existing one back to pending without touching its attempt count.
	Enqueue(ctx context.Context, db *gorm.DB, id, invoiceID snowflake.ID, channel string, nextAttemptAt time.Time) error

	// ClaimDue locks up to limit pending, unpaused attempts whose
	// next_attempt_at has passed. Must run inside a transaction.
	ClaimDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]SubmissionAttempt, error)

	// MarkInFlight moves pending -> in_flight and increments the attempt
	// count. Returns false when the row was claimed by someone else.
	MarkInFlight(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, confirmationCode string, now time.Time) error
	MarkRejected(ctx context.Context, db *gorm.DB, id snowflake.ID, reasonCode string, now time.Time) error

	// RescheduleTransient moves in_flight back to pending with a new
	// next_attempt_at.
	RescheduleTransient(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, nextAttemptAt, now time.Time) error

	// MarkExhausted parks the attempt after the retry budget is spent.
	MarkExhausted(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error

	// Pause parks the attempt pending operator action, without spending
	// retry budget beyond the failed attempt itself.
	Pause(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error

	// Reset re-arms an exhausted or paused attempt with a fresh retry
	// budget. Operator action.
	Reset(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, channel string, now time.Time) (bool, error)

	FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]SubmissionAttempt, error)

	// Queue lists attempts needing operator attention: paused or
	// exhausted, oldest first.
	Queue(ctx context.Context, db *gorm.DB, limit int) ([]SubmissionAttempt, error)
}
