package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/facturia-app/facturia/internal/clock"
	"github.com/facturia-app/facturia/internal/compliance"
	"github.com/facturia-app/facturia/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Machine *compliance.Machine
	GenID   *snowflake.Node
	Clock   clock.Clock
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	machine *compliance.Machine
	genID   *snowflake.Node
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("invoice"),
		repo:    p.Repo,
		machine: p.Machine,
		genID:   p.GenID,
		clock:   p.Clock,
	}
}

func (s *service) CreateDraft(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	now := s.clock.Now()

	inv := &domain.Invoice{
		ID:               s.genID.Generate(),
		IssuerID:         req.IssuerID,
		Type:             req.Type,
		Series:           req.Series,
		Status:           domain.StatusDraft,
		IssueDate:        req.IssueDate,
		DueDate:          req.DueDate,
		IssuerName:       req.IssuerName,
		IssuerTaxID:      req.IssuerTaxID,
		IssuerAddress:    req.IssuerAddress,
		RecipientName:    req.RecipientName,
		RecipientTaxID:   req.RecipientTaxID,
		RecipientAddress: req.RecipientAddress,
		TaxableBase:      req.TaxableBase,
		TaxRate:          req.TaxRate,
		TaxAmount:        req.TaxAmount,
		Total:            req.Total,
		Metadata:         datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if inv.Type == "" {
		inv.Type = domain.TypeCompleta
	}

	if err := inv.ValidateMandatory(); err != nil {
		return nil, err
	}
	if err := inv.ValidateArithmetic(); err != nil {
		return nil, err
	}

	lines := make([]domain.InvoiceLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Description == "" {
			return nil, domain.NewValidationError("lines.description", "required")
		}
		lines = append(lines, domain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   inv.ID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
			CreatedAt:   now,
		})
	}

	if err := s.repo.Insert(ctx, s.db, inv, lines); err != nil {
		return nil, err
	}
	if err := s.machine.RecordCreation(ctx, s.db, inv.ID); err != nil {
		return nil, err
	}

	s.log.Info("draft invoice created",
		zap.Int64("invoice_id", int64(inv.ID)),
		zap.Int64("issuer_id", int64(inv.IssuerID)),
		zap.String("series", inv.Series),
	)
	return inv, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *service) GetWithLines(ctx context.Context, id snowflake.ID) (*domain.Invoice, []domain.InvoiceLine, error) {
	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.repo.FindLines(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return inv, lines, nil
}

func (s *service) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Invoice, error) {
	return s.repo.List(ctx, s.db, filter)
}
