package retry_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/compliance"
	"github.com/facturia-app/facturia/internal/config"
	"github.com/facturia-app/facturia/internal/credential"
	"github.com/facturia-app/facturia/internal/credential/credtest"
	"github.com/facturia-app/facturia/internal/facturae"
	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
	invoicerepo "github.com/facturia-app/facturia/internal/invoice/repository"
	invoiceservice "github.com/facturia-app/facturia/internal/invoice/service"
	"github.com/facturia-app/facturia/internal/lease"
	"github.com/facturia-app/facturia/internal/numbering"
	"github.com/facturia-app/facturia/internal/retry"
	retrydomain "github.com/facturia-app/facturia/internal/retry/domain"
	retryrepo "github.com/facturia-app/facturia/internal/retry/repository"
	"github.com/facturia-app/facturia/internal/signer"
	"github.com/facturia-app/facturia/internal/submission"
	"github.com/facturia-app/facturia/internal/verifactu"
)

type scriptedChannel struct {
	name    string
	results []submission.Result
	calls   int
}

func (c *scriptedChannel) Name() string { return c.name }

func (c *scriptedChannel) Submit(ctx context.Context, signedXML []byte) (submission.Result, error) {
	idx := c.calls
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	c.calls++
	return c.results[idx], nil
}

func newSweepDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// sqlite has no row locks; strip the clause the same way production
	// postgres would honor it.
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			id BIGINT PRIMARY KEY,
			issuer_id BIGINT NOT NULL,
			invoice_type TEXT NOT NULL DEFAULT 'completa',
			series TEXT NOT NULL DEFAULT '',
			number BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'draft',
			issue_date DATE NOT NULL,
			due_date DATE,
			issuer_name TEXT NOT NULL,
			issuer_tax_id TEXT NOT NULL,
			issuer_address TEXT NOT NULL DEFAULT '',
			recipient_name TEXT NOT NULL,
			recipient_tax_id TEXT NOT NULL,
			recipient_address TEXT NOT NULL DEFAULT '',
			taxable_base NUMERIC NOT NULL,
			tax_rate NUMERIC NOT NULL,
			tax_amount NUMERIC NOT NULL,
			total NUMERIC NOT NULL,
			signed_xml BLOB,
			signing_certificate TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_lines (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			description TEXT NOT NULL,
			quantity NUMERIC NOT NULL,
			unit_price NUMERIC NOT NULL,
			tax_rate NUMERIC NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS series_counters (
			issuer_id BIGINT NOT NULL,
			series TEXT NOT NULL,
			period TEXT NOT NULL,
			last_number BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (issuer_id, series, period)
		)`,
		`CREATE TABLE IF NOT EXISTS signing_credentials (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL UNIQUE,
			filename TEXT NOT NULL,
			container BLOB NOT NULL,
			passphrase TEXT NOT NULL,
			uploaded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS submission_attempts (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			channel TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			attempt_count INT NOT NULL DEFAULT 0,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			last_error TEXT NOT NULL DEFAULT '',
			confirmation_code TEXT NOT NULL DEFAULT '',
			last_attempt_at TIMESTAMP,
			next_attempt_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (invoice_id, channel)
		)`,
		`CREATE TABLE IF NOT EXISTS compliance_transitions (
			id BIGINT PRIMARY KEY,
			invoice_id BIGINT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type sweepHarness struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	invoices invoicedomain.Service
	comp     *compliance.Service
	sched    *retry.Scheduler
	channel  *scriptedChannel
}

func newSweepHarness(t *testing.T, maxAttempts int, results ...submission.Result) *sweepHarness {
	db := newSweepDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	machine := compliance.NewMachine(node)
	channel := &scriptedChannel{name: submission.ChannelSII, results: results}
	gateway := submission.NewGatewayWithChannels(5*time.Second, log, channel)
	invRepo := invoicerepo.Provide()
	attemptRepo := retryrepo.Provide()
	creds := credential.NewStore(credential.Params{DB: db, Log: log, GenID: node})

	cfg := config.Config{
		Retry: config.RetryConfig{
			MaxAttempts:   maxAttempts,
			SweepInterval: time.Minute,
			BackoffBase:   2 * time.Minute,
			LeaseTTL:      2 * time.Minute,
			BatchSize:     10,
		},
	}

	invSvc := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, Repo: invRepo, Machine: machine, GenID: node, Clock: fake,
	})
	comp := compliance.NewService(compliance.Params{
		DB:        db,
		Log:       log,
		Config:    cfg,
		GenID:     node,
		Clock:     fake,
		Machine:   machine,
		Invoices:  invRepo,
		Attempts:  attemptRepo,
		Allocator: numbering.NewAllocator(numbering.Params{DB: db, Log: log, Clock: fake}),
		Renderer:  facturae.NewRenderer(),
		Signer:    signer.NewSigner(log),
		Creds:     creds,
		QR:        verifactu.NewGenerator(verifactu.NewQREncoder(), log),
		Gateway:   gateway,
	})

	sched, err := retry.New(retry.Params{
		DB:         db,
		Log:        log,
		Config:     cfg,
		Clock:      fake,
		Locker:     lease.NewLocker(nil),
		Gateway:    gateway,
		Compliance: comp,
		Attempts:   attemptRepo,
		Invoices:   invRepo,
	})
	require.NoError(t, err)

	key, cert := credtest.NewSelfSigned(t, "Gestiones del Sur SL")
	container := credtest.EncryptedPEMContainer(t, key, cert, "s3cret")
	require.NoError(t, creds.Save(context.Background(), snowflake.ID(42), "cert.pem", container, "s3cret"))

	return &sweepHarness{db: db, clock: fake, invoices: invSvc, comp: comp, sched: sched, channel: channel}
}

func (h *sweepHarness) issueDraft(t *testing.T) *invoicedomain.Invoice {
	draft, err := h.invoices.CreateDraft(context.Background(), invoicedomain.CreateInvoiceRequest{
		IssuerID:       snowflake.ID(42),
		Type:           invoicedomain.TypeCompleta,
		Series:         "F",
		IssueDate:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		IssuerName:     "Gestiones del Sur SL",
		IssuerTaxID:    "B12345678",
		RecipientName:  "Cliente Ejemplo SA",
		RecipientTaxID: "A87654321",
		TaxableBase:    decimal.RequireFromString("1000.00"),
		TaxRate:        decimal.RequireFromString("21"),
		TaxAmount:      decimal.RequireFromString("210.00"),
		Total:          decimal.RequireFromString("1210.00"),
		Lines: []invoicedomain.CreateInvoiceLine{
			{
				Description: "Servicios de consultoría",
				Quantity:    decimal.NewFromInt(10),
				UnitPrice:   decimal.RequireFromString("100.00"),
				TaxRate:     decimal.RequireFromString("21"),
			},
		},
	})
	require.NoError(t, err)

	inv, err := h.comp.Issue(context.Background(), draft.ID, submission.ChannelSII)
	require.NoError(t, err)
	return inv
}

func (h *sweepHarness) attempt(t *testing.T, invoiceID snowflake.ID) retrydomain.SubmissionAttempt {
	attempts, err := h.comp.Attempts(context.Background(), invoiceID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	return attempts[0]
}

func TestSweepRetriesUntilAccepted(t *testing.T) {
	h := newSweepHarness(t, 5,
		submission.Result{Outcome: submission.OutcomeTransient, Err: "timeout"},
		submission.Result{Outcome: submission.OutcomeAccepted, ConfirmationCode: "CSV-77"},
	)

	inv := h.issueDraft(t)
	require.Equal(t, invoicedomain.StatusPendingRetry, inv.Status)
	require.Equal(t, 1, h.attempt(t, inv.ID).AttemptCount)

	// Not yet due: the sweep must not touch it.
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, h.channel.calls)

	h.clock.Advance(3 * time.Minute)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, 2, h.channel.calls)

	got, err := h.invoices.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusAccepted, got.Status)

	attempt := h.attempt(t, inv.ID)
	assert.Equal(t, retrydomain.AttemptAccepted, attempt.State)
	assert.Equal(t, "CSV-77", attempt.ConfirmationCode)
	assert.Equal(t, 2, attempt.AttemptCount)
}

func TestSweepIncrementsAttemptCountByOne(t *testing.T) {
	h := newSweepHarness(t, 5,
		submission.Result{Outcome: submission.OutcomeTransient, Err: "timeout"},
	)

	inv := h.issueDraft(t)
	require.Equal(t, 1, h.attempt(t, inv.ID).AttemptCount)

	h.clock.Advance(3 * time.Minute)
	require.NoError(t, h.sched.RunOnce(context.Background()))

	got, err := h.invoices.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPendingRetry, got.Status)
	assert.Equal(t, 2, h.attempt(t, inv.ID).AttemptCount)
}

func TestSweepExhaustsBudgetAndStops(t *testing.T) {
	h := newSweepHarness(t, 3,
		submission.Result{Outcome: submission.OutcomeTransient, Err: "timeout"},
	)

	inv := h.issueDraft(t)

	// Two more failures exhaust a budget of three.
	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Hour)
		require.NoError(t, h.sched.RunOnce(context.Background()))
	}

	attempt := h.attempt(t, inv.ID)
	assert.Equal(t, retrydomain.AttemptExhausted, attempt.State)
	assert.Equal(t, 3, attempt.AttemptCount)
	assert.Equal(t, 3, h.channel.calls)

	got, err := h.invoices.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPendingRetry, got.Status)

	// Exhausted attempts are never auto-resubmitted.
	for i := 0; i < 3; i++ {
		h.clock.Advance(24 * time.Hour)
		require.NoError(t, h.sched.RunOnce(context.Background()))
	}
	assert.Equal(t, 3, h.channel.calls)
}

func TestResetRearmsExhaustedAttempt(t *testing.T) {
	h := newSweepHarness(t, 2,
		submission.Result{Outcome: submission.OutcomeTransient, Err: "timeout"},
		submission.Result{Outcome: submission.OutcomeTransient, Err: "timeout"},
		submission.Result{Outcome: submission.OutcomeAccepted, ConfirmationCode: "CSV-OK"},
	)

	inv := h.issueDraft(t)
	h.clock.Advance(time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	require.Equal(t, retrydomain.AttemptExhausted, h.attempt(t, inv.ID).State)

	reset, err := h.comp.ResetRetry(context.Background(), inv.ID, submission.ChannelSII)
	require.NoError(t, err)
	assert.True(t, reset)

	attempt := h.attempt(t, inv.ID)
	assert.Equal(t, retrydomain.AttemptPending, attempt.State)
	assert.Equal(t, 0, attempt.AttemptCount)

	require.NoError(t, h.sched.RunOnce(context.Background()))

	got, err := h.invoices.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusAccepted, got.Status)
	assert.Equal(t, 3, h.channel.calls)
}

func TestSweepSkipsPausedAttempts(t *testing.T) {
	h := newSweepHarness(t, 5,
		submission.Result{Outcome: submission.OutcomeAuthFailure, Err: "certificate not admitted"},
	)

	inv := h.issueDraft(t)
	require.True(t, h.attempt(t, inv.ID).Paused)

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Hour)
		require.NoError(t, h.sched.RunOnce(context.Background()))
	}
	assert.Equal(t, 1, h.channel.calls)
}
