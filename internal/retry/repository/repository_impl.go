package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/retry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Enqueue(ctx context.Context, db *gorm.DB, id, invoiceID snowflake.ID, channel string, nextAttemptAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO submission_attempts (
			id, invoice_id, channel, state, attempt_count, paused,
			last_error, confirmation_code, next_attempt_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, FALSE, '', '', ?, ?, ?)
		ON CONFLICT (invoice_id, channel) DO UPDATE SET
			state = ?,
			paused = FALSE,
			next_attempt_at = ?,
			updated_at = ?`,
		id,
		invoiceID,
		channel,
		domain.AttemptPending,
		nextAttemptAt,
		time.Now().UTC(),
		time.Now().UTC(),
		domain.AttemptPending,
		nextAttemptAt,
		time.Now().UTC(),
	).Error
}

func (r *repo) ClaimDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]domain.SubmissionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []domain.SubmissionAttempt
	err := tx.WithContext(ctx).Raw(
		`SELECT sa.id, sa.invoice_id, sa.channel, sa.state, sa.attempt_count, sa.paused,
		        sa.last_error, sa.confirmation_code, sa.last_attempt_at, sa.next_attempt_at,
		        sa.created_at, sa.updated_at
		 FROM submission_attempts sa
		 WHERE sa.state = ?
		   AND sa.paused = FALSE
		   AND (sa.next_attempt_at IS NULL OR sa.next_attempt_at <= ?)
		   AND EXISTS (
		       SELECT 1 FROM invoices i
		       WHERE i.id = sa.invoice_id AND i.status = ?
		   )
		 ORDER BY sa.next_attempt_at ASC, sa.id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.AttemptPending,
		now,
		invoicedomain.StatusPendingRetry,
		limit,
	).Scan(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repo) MarkInFlight(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, attempt_count = attempt_count + 1,
		     last_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND state = ? AND paused = FALSE`,
		domain.AttemptInFlight,
		now,
		now,
		id,
		domain.AttemptPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkAccepted(ctx context.Context, db *gorm.DB, id snowflake.ID, confirmationCode string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, confirmation_code = ?, last_error = '',
		     next_attempt_at = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.AttemptAccepted,
		confirmationCode,
		now,
		id,
		domain.AttemptInFlight,
	).Error
}

func (r *repo) MarkRejected(ctx context.Context, db *gorm.DB, id snowflake.ID, reasonCode string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, last_error = ?, next_attempt_at = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.AttemptRejected,
		reasonCode,
		now,
		id,
		domain.AttemptInFlight,
	).Error
}

func (r *repo) RescheduleTransient(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, nextAttemptAt, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.AttemptPending,
		lastError,
		nextAttemptAt,
		now,
		id,
		domain.AttemptInFlight,
	).Error
}

func (r *repo) MarkExhausted(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, last_error = ?, next_attempt_at = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.AttemptExhausted,
		lastError,
		now,
		id,
		domain.AttemptInFlight,
	).Error
}

func (r *repo) Pause(ctx context.Context, db *gorm.DB, id snowflake.ID, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, paused = TRUE, last_error = ?,
		     next_attempt_at = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		domain.AttemptPending,
		lastError,
		now,
		id,
		domain.AttemptInFlight,
	).Error
}

func (r *repo) Reset(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, channel string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE submission_attempts
		 SET state = ?, paused = FALSE, attempt_count = 0,
		     next_attempt_at = ?, updated_at = ?
		 WHERE invoice_id = ? AND channel = ?
		   AND (state = ? OR paused = TRUE)`,
		domain.AttemptPending,
		now,
		now,
		invoiceID,
		channel,
		domain.AttemptExhausted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.SubmissionAttempt, error) {
	var attempts []domain.SubmissionAttempt
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("channel asc").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repo) Queue(ctx context.Context, db *gorm.DB, limit int) ([]domain.SubmissionAttempt, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	var attempts []domain.SubmissionAttempt
	err := db.WithContext(ctx).
		Where("state = ? OR paused = TRUE", domain.AttemptExhausted).
		Order("updated_at asc, id asc").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
