// Package retry re-drives submission attempts that failed transiently,
// bounded by a per-attempt budget and spaced with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/compliance"
	"github.com/facturia-app/facturia/internal/config"
	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/lease"
	"github.com/facturia-app/facturia/internal/retry/domain"
	"github.com/facturia-app/facturia/internal/submission"
)

// ErrInvalidConfig is returned when required collaborators are missing.
var ErrInvalidConfig = errors.New("retry: invalid scheduler configuration")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	Locker     *lease.Locker
	Gateway    *submission.Gateway
	Compliance *compliance.Service
	Attempts   domain.Repository
	Invoices   invoicedomain.Repository
}

// Scheduler is the sweep loop. Each run claims due attempts with row
// locks, takes a short lease per invoice so concurrent sweeps never
// double-submit, and re-drives the submission through the same outcome
// handling as the first attempt.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.RetryConfig
	clock      clock.Clock
	locker     *lease.Locker
	gateway    *submission.Gateway
	compliance *compliance.Service
	attempts   domain.Repository
	invoices   invoicedomain.Repository
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Locker == nil || p.Gateway == nil || p.Compliance == nil || p.Attempts == nil || p.Invoices == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.Retry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Minute
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("retry").With(zap.String("component", "retry_sweep")),
		cfg:        cfg,
		clock:      p.Clock,
		locker:     p.Locker,
		gateway:    p.Gateway,
		compliance: p.Compliance,
		attempts:   p.Attempts,
		invoices:   p.Invoices,
	}, nil
}

// RunOnce performs a single sweep: claim due attempts in batches until the
// queue drains, re-driving each one. Per-attempt failures are joined and
// reported, not fatal to the sweep.
func (s *Scheduler) RunOnce(parent context.Context) error {
	runID := ulid.Make().String()
	log := s.log.With(zap.String("run_id", runID))
	start := time.Now()
	sweepsTotal.Inc()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var sweepErr error
	processed := 0

	for {
		if parent.Err() != nil {
			return errors.Join(sweepErr, parent.Err())
		}

		var due []domain.SubmissionAttempt
		err := s.db.WithContext(parent).Transaction(func(tx *gorm.DB) error {
			var err error
			due, err = s.attempts.ClaimDue(parent, tx, s.clock.Now(), s.cfg.BatchSize)
			return err
		})
		if err != nil {
			log.Warn("claim batch failed", zap.Error(err))
			return errors.Join(sweepErr, err)
		}
		if len(due) == 0 {
			break
		}

		for _, attempt := range due {
			if err := s.processAttempt(parent, log, attempt); err != nil {
				sweepErr = errors.Join(sweepErr, err)
				continue
			}
			processed++
		}
	}

	if processed > 0 {
		log.Info("sweep finished", zap.Int("processed", processed))
	}
	return sweepErr
}

func (s *Scheduler) processAttempt(ctx context.Context, log *zap.Logger, attempt domain.SubmissionAttempt) error {
	log = log.With(
		zap.String("invoice_id", attempt.InvoiceID.String()),
		zap.String("channel", attempt.Channel),
	)

	key := fmt.Sprintf("facturia:invoice:%s", attempt.InvoiceID)
	token, ok, err := s.locker.TryAcquire(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		// Another sweep holds this invoice.
		attemptsTotal.WithLabelValues("lease_held").Inc()
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("lease release failed", zap.Error(err))
		}
	}()

	now := s.clock.Now()
	claimed, err := s.attempts.MarkInFlight(ctx, s.db, attempt.ID, now)
	if err != nil {
		return err
	}
	if !claimed {
		attemptsTotal.WithLabelValues("lost_claim").Inc()
		return nil
	}
	attempt.AttemptCount++
	attempt.State = domain.AttemptInFlight

	inv, err := s.invoices.FindByID(ctx, s.db, attempt.InvoiceID)
	if err != nil {
		return err
	}

	if err := s.compliance.BeginRetry(ctx, inv, attempt.Channel, attempt.AttemptCount); err != nil {
		if errors.Is(err, compliance.ErrInvalidTransition) {
			// Raced with a concurrent outcome; back off and let the next
			// sweep re-evaluate.
			next := now.Add(domain.NextBackoff(s.cfg.BackoffBase, attempt.AttemptCount))
			attemptsTotal.WithLabelValues("lost_claim").Inc()
			return s.attempts.RescheduleTransient(ctx, s.db, attempt.ID, err.Error(), next, now)
		}
		return err
	}

	result, err := s.gateway.Submit(ctx, inv.SignedXML, attempt.Channel)
	if err != nil {
		result = submission.Result{Outcome: submission.OutcomeTransient, Err: err.Error()}
	}

	if err := s.compliance.ApplyOutcome(ctx, attempt, result); err != nil {
		return err
	}
	attemptsTotal.WithLabelValues(string(result.Outcome)).Inc()
	log.Info("attempt re-driven",
		zap.Int("attempt_count", attempt.AttemptCount),
		zap.String("outcome", string(result.Outcome)),
	)
	return nil
}

// RunForever sweeps on a fixed interval until ctx is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
