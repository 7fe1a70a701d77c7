package compliance

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/config"
	"github.com/facturia-app/facturia/internal/credential"
	"github.com/facturia-app/facturia/internal/facturae"
	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/numbering"
	retrydomain "github.com/facturia-app/facturia/internal/retry/domain"
	"github.com/facturia-app/facturia/internal/signer"
	"github.com/facturia-app/facturia/internal/submission"
	"github.com/facturia-app/facturia/internal/verifactu"
)

// ErrNotVoidable is returned when anulación is requested for an invoice
// that has not reached a terminal submission outcome.
var ErrNotVoidable = errors.New("compliance: invoice cannot be voided in its current state")

// DefaultSeries is used when a draft does not carry an explicit series.
const DefaultSeries = "F"

// Service drives an invoice through the full issue pipeline: number
// reservation, canonical rendering, signing, traceability, and the first
// submission. The retry sweep re-drives later attempts through
// ApplyOutcome so both paths classify results identically.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.Config
	genID     *snowflake.Node
	clock     clock.Clock
	machine   *Machine
	invoices  invoicedomain.Repository
	attempts  retrydomain.Repository
	allocator *numbering.Allocator
	renderer  *facturae.Renderer
	signer    *signer.Signer
	creds     *credential.Store
	qr        *verifactu.Generator
	gateway   *submission.Gateway
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	GenID     *snowflake.Node
	Clock     clock.Clock
	Machine   *Machine
	Invoices  invoicedomain.Repository
	Attempts  retrydomain.Repository
	Allocator *numbering.Allocator
	Renderer  *facturae.Renderer
	Signer    *signer.Signer
	Creds     *credential.Store
	QR        *verifactu.Generator
	Gateway   *submission.Gateway
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("compliance"),
		cfg:       p.Config,
		genID:     p.GenID,
		clock:     p.Clock,
		machine:   p.Machine,
		invoices:  p.Invoices,
		attempts:  p.Attempts,
		allocator: p.Allocator,
		renderer:  p.Renderer,
		signer:    p.Signer,
		creds:     p.Creds,
		qr:        p.QR,
		gateway:   p.Gateway,
	}
}

// Issue runs the pipeline for an invoice and performs the first submission
// on the given channel synchronously. A draft goes through every stage; an
// invoice stranded in numbered or signed by an earlier failure (a bad
// credential, typically) resumes from where it stopped, keeping its burned
// number. On a transient or auth failure the invoice parks in
// pending_retry; the returned invoice reflects the state reached.
func (s *Service) Issue(ctx context.Context, invoiceID snowflake.ID, channel string) (*invoicedomain.Invoice, error) {
	if !s.gateway.Has(channel) {
		return nil, fmt.Errorf("%w: %q", submission.ErrUnknownChannel, channel)
	}

	inv, err := s.invoices.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case invoicedomain.StatusDraft, invoicedomain.StatusNumbered, invoicedomain.StatusSigned:
	default:
		return nil, fmt.Errorf("%w: issue from %s", ErrInvalidTransition, inv.Status)
	}
	if err := inv.ValidateMandatory(); err != nil {
		return nil, err
	}
	if err := inv.ValidateArithmetic(); err != nil {
		return nil, err
	}

	if inv.Status == invoicedomain.StatusDraft {
		if err := s.reserveNumber(ctx, inv); err != nil {
			return nil, err
		}
	}
	if inv.Status == invoicedomain.StatusNumbered {
		if err := s.signDocument(ctx, inv); err != nil {
			return nil, err
		}
	}

	rf, err := verifactu.Fingerprint(inv)
	if err != nil {
		return nil, err
	}
	qrRes, err := s.qr.RenderImage(rf)
	if err != nil {
		return nil, err
	}

	if err := s.machine.Transition(ctx, s.db, inv.ID, invoicedomain.StatusSigned, invoicedomain.StatusSubmitting, "submission_started", map[string]interface{}{
		"channel":      channel,
		"traceability": rf,
		"qr_available": qrRes.Available,
	}); err != nil {
		return nil, err
	}
	inv.Status = invoicedomain.StatusSubmitting

	attempt, err := s.startAttempt(ctx, inv.ID, channel)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Submit(ctx, inv.SignedXML, channel)
	if err != nil {
		// A local transport failure still happened after the attempt went
		// in flight; classify it so the invoice parks for the sweep
		// instead of stranding in submitting.
		result = submission.Result{Outcome: submission.OutcomeTransient, Err: err.Error()}
	}
	if err := s.ApplyOutcome(ctx, attempt, result); err != nil {
		return nil, err
	}

	return s.invoices.FindByID(ctx, s.db, invoiceID)
}

// reserveNumber allocates the next gap-free number and moves the invoice
// to numbered. The invoice struct is updated in place so later pipeline
// stages see the legal number.
func (s *Service) reserveNumber(ctx context.Context, inv *invoicedomain.Invoice) error {
	series := inv.Series
	if series == "" {
		series = DefaultSeries
	}
	res, err := s.allocator.Reserve(ctx, inv.IssuerID, series, inv.IssueDate)
	if err != nil {
		return err
	}
	if err := s.invoices.SetNumber(ctx, s.db, inv.ID, res.Series, res.Number); err != nil {
		return err
	}
	if err := s.machine.Transition(ctx, s.db, inv.ID, invoicedomain.StatusDraft, invoicedomain.StatusNumbered, "number_reserved", map[string]interface{}{
		"series": res.Series,
		"number": res.Number,
		"period": res.Period,
	}); err != nil {
		return err
	}
	inv.Series = res.Series
	inv.Number = res.Number
	inv.Status = invoicedomain.StatusNumbered
	return nil
}

// signDocument renders the canonical XML, signs it with the issuer's
// credential and persists the signed payload. Key material is zeroed as
// soon as the signature exists.
func (s *Service) signDocument(ctx context.Context, inv *invoicedomain.Invoice) error {
	lines, err := s.invoices.FindLines(ctx, s.db, inv.ID)
	if err != nil {
		return err
	}
	canonical, err := s.renderer.Render(inv, lines)
	if err != nil {
		return err
	}

	cred, err := s.creds.Unwrap(ctx, inv.IssuerID)
	if err != nil {
		return err
	}
	signed, err := s.signer.Sign(canonical, cred)
	cred.Close()
	if err != nil {
		return err
	}

	if err := s.invoices.SetSignedPayload(ctx, s.db, inv.ID, signed.XML, signed.Certificate); err != nil {
		return err
	}
	if err := s.machine.Transition(ctx, s.db, inv.ID, invoicedomain.StatusNumbered, invoicedomain.StatusSigned, "document_signed", map[string]interface{}{
		"signed_at": signed.SignedAt,
	}); err != nil {
		return err
	}
	inv.SignedXML = signed.XML
	inv.SigningCertificate = signed.Certificate
	inv.Status = invoicedomain.StatusSigned
	return nil
}

// startAttempt enqueues and immediately claims the (invoice, channel)
// attempt slot for a synchronous first submission.
func (s *Service) startAttempt(ctx context.Context, invoiceID snowflake.ID, channel string) (retrydomain.SubmissionAttempt, error) {
	now := s.clock.Now()
	id := s.genID.Generate()
	if err := s.attempts.Enqueue(ctx, s.db, id, invoiceID, channel, now); err != nil {
		return retrydomain.SubmissionAttempt{}, err
	}

	attempts, err := s.attempts.FindByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return retrydomain.SubmissionAttempt{}, err
	}
	var attempt retrydomain.SubmissionAttempt
	for _, a := range attempts {
		if a.Channel == channel {
			attempt = a
			break
		}
	}
	if attempt.ID == 0 {
		return retrydomain.SubmissionAttempt{}, fmt.Errorf("submission attempt missing for invoice %s channel %s", invoiceID, channel)
	}

	claimed, err := s.attempts.MarkInFlight(ctx, s.db, attempt.ID, now)
	if err != nil {
		return retrydomain.SubmissionAttempt{}, err
	}
	if !claimed {
		return retrydomain.SubmissionAttempt{}, fmt.Errorf("submission attempt for invoice %s already in flight", invoiceID)
	}
	attempt.AttemptCount++
	attempt.State = retrydomain.AttemptInFlight
	return attempt, nil
}

// BeginRetry moves a parked invoice back to submitting ahead of a sweep
// re-drive. Fails with ErrInvalidTransition when the invoice is no longer
// awaiting retry.
func (s *Service) BeginRetry(ctx context.Context, inv *invoicedomain.Invoice, channel string, attemptCount int) error {
	if err := s.machine.Transition(ctx, s.db, inv.ID, invoicedomain.StatusPendingRetry, invoicedomain.StatusSubmitting, "retry_attempt", map[string]interface{}{
		"channel":       channel,
		"attempt_count": attemptCount,
	}); err != nil {
		return err
	}
	inv.Status = invoicedomain.StatusSubmitting
	return nil
}

// ApplyOutcome records a classified submission result against an in-flight
// attempt and moves the invoice accordingly. Shared between the first
// synchronous submission and the retry sweep.
func (s *Service) ApplyOutcome(ctx context.Context, attempt retrydomain.SubmissionAttempt, result submission.Result) error {
	now := s.clock.Now()
	log := s.log.With(
		zap.String("invoice_id", attempt.InvoiceID.String()),
		zap.String("channel", attempt.Channel),
		zap.Int("attempt_count", attempt.AttemptCount),
		zap.String("outcome", string(result.Outcome)),
	)

	switch result.Outcome {
	case submission.OutcomeAccepted:
		if err := s.attempts.MarkAccepted(ctx, s.db, attempt.ID, result.ConfirmationCode, now); err != nil {
			return err
		}
		if err := s.invoices.SetLastError(ctx, s.db, attempt.InvoiceID, ""); err != nil {
			return err
		}
		log.Info("submission accepted", zap.String("confirmation_code", result.ConfirmationCode))
		return s.machine.Transition(ctx, s.db, attempt.InvoiceID, invoicedomain.StatusSubmitting, invoicedomain.StatusAccepted, "authority_accepted", map[string]interface{}{
			"channel":           attempt.Channel,
			"confirmation_code": result.ConfirmationCode,
		})

	case submission.OutcomeRejected:
		if err := s.attempts.MarkRejected(ctx, s.db, attempt.ID, result.ReasonCode, now); err != nil {
			return err
		}
		if err := s.invoices.SetLastError(ctx, s.db, attempt.InvoiceID, rejectionDetail(result)); err != nil {
			return err
		}
		log.Warn("submission rejected", zap.String("reason_code", result.ReasonCode))
		return s.machine.Transition(ctx, s.db, attempt.InvoiceID, invoicedomain.StatusSubmitting, invoicedomain.StatusRejected, "authority_rejected", map[string]interface{}{
			"channel":     attempt.Channel,
			"reason_code": result.ReasonCode,
		})

	case submission.OutcomeAuthFailure:
		if err := s.attempts.Pause(ctx, s.db, attempt.ID, result.Err, now); err != nil {
			return err
		}
		if err := s.invoices.SetLastError(ctx, s.db, attempt.InvoiceID, result.Err); err != nil {
			return err
		}
		log.Warn("submission credential refused, pausing retries")
		return s.machine.Transition(ctx, s.db, attempt.InvoiceID, invoicedomain.StatusSubmitting, invoicedomain.StatusPendingRetry, "auth_failure", map[string]interface{}{
			"channel": attempt.Channel,
			"error":   result.Err,
		})

	default: // transient
		if err := s.invoices.SetLastError(ctx, s.db, attempt.InvoiceID, result.Err); err != nil {
			return err
		}
		if attempt.AttemptCount >= s.cfg.Retry.MaxAttempts {
			if err := s.attempts.MarkExhausted(ctx, s.db, attempt.ID, result.Err, now); err != nil {
				return err
			}
			log.Warn("retry budget exhausted, operator action required")
			return s.machine.Transition(ctx, s.db, attempt.InvoiceID, invoicedomain.StatusSubmitting, invoicedomain.StatusPendingRetry, "retry_budget_exhausted", map[string]interface{}{
				"channel":       attempt.Channel,
				"attempt_count": attempt.AttemptCount,
				"error":         result.Err,
			})
		}

		next := now.Add(retrydomain.NextBackoff(s.cfg.Retry.BackoffBase, attempt.AttemptCount))
		if err := s.attempts.RescheduleTransient(ctx, s.db, attempt.ID, result.Err, next, now); err != nil {
			return err
		}
		log.Info("transient failure, rescheduled", zap.Time("next_attempt_at", next))
		return s.machine.Transition(ctx, s.db, attempt.InvoiceID, invoicedomain.StatusSubmitting, invoicedomain.StatusPendingRetry, "transient_failure", map[string]interface{}{
			"channel":         attempt.Channel,
			"attempt_count":   attempt.AttemptCount,
			"next_attempt_at": next,
			"error":           result.Err,
		})
	}
}

func rejectionDetail(result submission.Result) string {
	if result.ReasonCode != "" {
		return result.ReasonCode
	}
	return result.Err
}

// Void records the anulación of an invoice that already reached a terminal
// submission outcome. The number is never reused and the signed payload is
// kept; voiding is an append-only lifecycle event.
func (s *Service) Void(ctx context.Context, invoiceID snowflake.ID, reason string) error {
	inv, err := s.invoices.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return err
	}
	switch inv.Status {
	case invoicedomain.StatusAccepted, invoicedomain.StatusRejected:
	default:
		return fmt.Errorf("%w: %s", ErrNotVoidable, inv.Status)
	}
	return s.machine.Transition(ctx, s.db, invoiceID, inv.Status, invoicedomain.StatusVoided, "voided", map[string]interface{}{
		"reason": reason,
	})
}

// History returns the full lifecycle trail for an invoice, oldest first.
func (s *Service) History(ctx context.Context, invoiceID snowflake.ID) ([]TransitionRecord, error) {
	if _, err := s.invoices.FindByID(ctx, s.db, invoiceID); err != nil {
		return nil, err
	}
	return s.machine.History(ctx, s.db, invoiceID)
}

// ResetRetry re-arms an exhausted or paused attempt with a fresh budget.
// Returns false when there was nothing to reset.
func (s *Service) ResetRetry(ctx context.Context, invoiceID snowflake.ID, channel string) (bool, error) {
	if _, err := s.invoices.FindByID(ctx, s.db, invoiceID); err != nil {
		return false, err
	}
	return s.attempts.Reset(ctx, s.db, invoiceID, channel, s.clock.Now())
}

// Attempts returns the retry ledger rows for one invoice.
func (s *Service) Attempts(ctx context.Context, invoiceID snowflake.ID) ([]retrydomain.SubmissionAttempt, error) {
	return s.attempts.FindByInvoice(ctx, s.db, invoiceID)
}

// RetryQueue lists attempts waiting on an operator: paused by an auth
// failure or parked after exhausting their budget, oldest first.
func (s *Service) RetryQueue(ctx context.Context, limit int) ([]retrydomain.SubmissionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.attempts.Queue(ctx, s.db, limit)
}
