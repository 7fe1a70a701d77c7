// Package numbering reserves gap-free legal invoice numbers.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/invoice/format"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAllocatorUnavailable is returned only when the reservation primitive
// itself fails. Concurrent contention never surfaces as an error: the
// database serializes the increment and every caller gets a number.
var ErrAllocatorUnavailable = fmt.Errorf("number allocator unavailable")

// Reservation is a reserved legal invoice number. The number is consumed
// the moment it is returned; a discarded invoice leaves a gap that must be
// closed with a formal void record, never by reuse.
type Reservation struct {
	Series    string
	Number    int64
	Formatted string
	Period    string
}

type Allocator struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

func NewAllocator(p Params) *Allocator {
	return &Allocator{
		db:    p.DB,
		log:   p.Log.Named("numbering"),
		clock: p.Clock,
	}
}

// Period buckets a date into the legal numbering period. Spanish series
// reset each calendar year.
func Period(date time.Time) string {
	return date.Format("2006")
}

// Reserve atomically increments and returns the next number for
// (issuer, series, period). The whole reservation is a single
// increment-and-return statement on the database side; there is no
// read-then-write window for two callers to collide in.
func (a *Allocator) Reserve(ctx context.Context, issuerID snowflake.ID, series string, date time.Time) (Reservation, error) {
	if series == "" {
		series = "F"
	}
	period := Period(date)
	now := a.clock.Now()

	var next int64
	var err error
	switch a.db.Dialector.Name() {
	case "mysql":
		// MySQL has no RETURNING; LAST_INSERT_ID carries the incremented
		// value out of the upsert atomically.
		err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(
				`INSERT INTO series_counters (issuer_id, series, period, last_number, updated_at)
				 VALUES (?, ?, ?, LAST_INSERT_ID(1), ?)
				 ON DUPLICATE KEY UPDATE
				   last_number = LAST_INSERT_ID(last_number + 1),
				   updated_at = VALUES(updated_at)`,
				issuerID, series, period, now,
			).Error; err != nil {
				return err
			}
			return tx.Raw(`SELECT LAST_INSERT_ID()`).Scan(&next).Error
		})
	default:
		err = a.db.WithContext(ctx).Raw(
			`INSERT INTO series_counters (issuer_id, series, period, last_number, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (issuer_id, series, period)
			 DO UPDATE SET last_number = series_counters.last_number + 1,
			               updated_at = EXCLUDED.updated_at
			 RETURNING last_number`,
			issuerID, series, period, now,
		).Scan(&next).Error
	}
	if err != nil {
		a.log.Error("number reservation failed",
			zap.Int64("issuer_id", int64(issuerID)),
			zap.String("series", series),
			zap.Error(err),
		)
		return Reservation{}, fmt.Errorf("%w: %v", ErrAllocatorUnavailable, err)
	}
	if next <= 0 {
		return Reservation{}, fmt.Errorf("%w: counter returned %d", ErrAllocatorUnavailable, next)
	}

	formatted, err := format.FormatNumber(series, next)
	if err != nil {
		return Reservation{}, fmt.Errorf("%w: %v", ErrAllocatorUnavailable, err)
	}

	return Reservation{
		Series:    series,
		Number:    next,
		Formatted: formatted,
		Period:    period,
	}, nil
}

var Module = fx.Module("numbering",
	fx.Provide(NewAllocator),
)
