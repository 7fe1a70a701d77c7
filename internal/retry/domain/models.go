// Package domain contains persistence models for submission attempts and
// the backoff policy applied to transient failures.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AttemptState tracks one (invoice, channel) submission slot.
type AttemptState string

const (
	// AttemptPending is eligible for the sweep once next_attempt_at passes.
	AttemptPending AttemptState = "pending"
	// AttemptInFlight is claimed by a worker right now.
	AttemptInFlight AttemptState = "in_flight"
	AttemptAccepted AttemptState = "accepted"
	AttemptRejected AttemptState = "rejected"
	// AttemptExhausted spent its retry budget. Only an operator reset
	// makes it eligible again.
	AttemptExhausted AttemptState = "exhausted"
)

// SubmissionAttempt is the retry ledger row for one invoice on one channel.
// (invoice_id, channel) is unique; re-enqueueing re-arms the existing row.
type SubmissionAttempt struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Channel   string       `gorm:"type:text;not null" json:"channel"`
	State     AttemptState `gorm:"type:text;not null;default:'pending'" json:"state"`

	AttemptCount int  `gorm:"not null;default:0" json:"attempt_count"`
	Paused       bool `gorm:"not null;default:false" json:"paused"`

	LastError        string `gorm:"type:text;not null;default:''" json:"last_error"`
	ConfirmationCode string `gorm:"type:text;not null;default:''" json:"confirmation_code"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (SubmissionAttempt) TableName() string { return "submission_attempts" }

// NextBackoff returns the delay before retry attemptCount+1. Exponential
// doubling on base: base, 2*base, 4*base, ...
func NextBackoff(base time.Duration, attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	delay := base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if delay > 24*time.Hour {
			return 24 * time.Hour
		}
	}
	return delay
}
