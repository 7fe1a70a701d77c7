package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
)

type createInvoiceRequest struct {
	IssuerID         string          `json:"issuer_id"`
	Type             string          `json:"type"`
	Series           string          `json:"series"`
	IssueDate        string          `json:"issue_date"`
	DueDate          string          `json:"due_date"`
	IssuerName       string          `json:"issuer_name"`
	IssuerTaxID      string          `json:"issuer_tax_id"`
	IssuerAddress    string          `json:"issuer_address"`
	RecipientName    string          `json:"recipient_name"`
	RecipientTaxID   string          `json:"recipient_tax_id"`
	RecipientAddress string          `json:"recipient_address"`
	TaxableBase      decimal.Decimal `json:"taxable_base"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	Total            decimal.Decimal `json:"total"`
	Lines            []struct {
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		TaxRate     decimal.Decimal `json:"tax_rate"`
	} `json:"lines"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	issuerID, err := snowflake.ParseString(strings.TrimSpace(req.IssuerID))
	if err != nil || issuerID == 0 {
		AbortWithError(c, newValidationError("issuer_id", "invalid_id", "invalid issuer id"))
		return
	}

	issueDate, err := parseDate(req.IssueDate)
	if err != nil {
		AbortWithError(c, newValidationError("issue_date", "invalid_date", "expected YYYY-MM-DD"))
		return
	}

	var dueDate *time.Time
	if strings.TrimSpace(req.DueDate) != "" {
		parsed, err := parseDate(req.DueDate)
		if err != nil {
			AbortWithError(c, newValidationError("due_date", "invalid_date", "expected YYYY-MM-DD"))
			return
		}
		dueDate = &parsed
	}

	create := invoicedomain.CreateInvoiceRequest{
		IssuerID:         issuerID,
		Type:             invoicedomain.InvoiceType(req.Type),
		Series:           strings.TrimSpace(req.Series),
		IssueDate:        issueDate,
		DueDate:          dueDate,
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
	}
	if create.Type == "" {
		create.Type = invoicedomain.TypeCompleta
	}
	for _, l := range req.Lines {
		create.Lines = append(create.Lines, invoicedomain.CreateInvoiceLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
		})
	}

	inv, err := s.invoiceSvc.CreateDraft(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	filter := invoicedomain.ListFilter{}

	if raw := strings.TrimSpace(c.Query("issuer_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("issuer_id", "invalid_id", "invalid issuer id"))
			return
		}
		filter.IssuerID = id
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		filter.Status = invoicedomain.InvoiceStatus(raw)
	}
	if limit, err := parseOptionalInt(c.Query("limit")); err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	} else if limit != nil {
		filter.Limit = *limit
	}

	items, err := s.invoiceSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	inv, lines, err := s.invoiceSvc.GetWithLines(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv, "lines": lines})
}

type issueInvoiceRequest struct {
	Channel string `json:"channel"`
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var req issueInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Channel) == "" {
		AbortWithError(c, newValidationError("channel", "required", "submission channel is required"))
		return
	}

	inv, err := s.complianceSvc.Issue(c.Request.Context(), id, strings.TrimSpace(req.Channel))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

type voidInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var req voidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		AbortWithError(c, newValidationError("reason", "required", "a void reason is required"))
		return
	}

	if err := s.complianceSvc.Void(c.Request.Context(), id, strings.TrimSpace(req.Reason)); err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) InvoiceHistory(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	history, err := s.complianceSvc.History(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) InvoiceAttempts(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	if _, err := s.invoiceSvc.Get(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	attempts, err := s.complianceSvc.Attempts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

func (s *Server) ListChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.gateway.Channels()})
}

// invoiceID parses the :id path parameter, aborting with a validation
// error when it is not a snowflake ID.
func (s *Server) invoiceID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
