package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturia-app/facturia/internal/compliance"
	"github.com/facturia-app/facturia/internal/config"
	"github.com/facturia-app/facturia/internal/credential"
	"github.com/facturia-app/facturia/internal/facturae"
	"github.com/facturia-app/facturia/internal/invoice"
	invoicedomain "github.com/facturia-app/facturia/internal/invoice/domain"
	"github.com/facturia-app/facturia/internal/numbering"
	"github.com/facturia-app/facturia/internal/providers"
	"github.com/facturia-app/facturia/internal/providers/pdf"
	"github.com/facturia-app/facturia/internal/retry"
	"github.com/facturia-app/facturia/internal/signer"
	"github.com/facturia-app/facturia/internal/submission"
	"github.com/facturia-app/facturia/internal/verifactu"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	invoice.Module,
	numbering.Module,
	credential.Module,
	facturae.Module,
	signer.Module,
	verifactu.Module,
	submission.Module,
	compliance.Module,
	retry.Module,
	providers.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	invoiceSvc    invoicedomain.Service
	complianceSvc *compliance.Service
	credentials   *credential.Store
	pdfRenderer   *pdf.Renderer
	qr            *verifactu.Generator
	gateway       *submission.Gateway
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	InvoiceSvc    invoicedomain.Service
	ComplianceSvc *compliance.Service
	Credentials   *credential.Store
	PDFRenderer   *pdf.Renderer
	QR            *verifactu.Generator
	Gateway       *submission.Gateway
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		invoiceSvc:    p.InvoiceSvc,
		complianceSvc: p.ComplianceSvc,
		credentials:   p.Credentials,
		pdfRenderer:   p.PDFRenderer,
		qr:            p.QR,
		gateway:       p.Gateway,
	}

	svc.registerAPIRoutes()
	svc.registerOperatorRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	invoices := api.Group("/invoices")
	{
		invoices.POST("", s.CreateInvoice)
		invoices.GET("", s.ListInvoices)
		invoices.GET("/:id", s.GetInvoiceByID)
		invoices.POST("/:id/issue", s.IssueInvoice)
		invoices.POST("/:id/void", s.VoidInvoice)
		invoices.GET("/:id/history", s.InvoiceHistory)
		invoices.GET("/:id/attempts", s.InvoiceAttempts)
		invoices.GET("/:id/xml", s.DownloadSignedXML)
		invoices.GET("/:id/pdf", s.DownloadPDF)
		invoices.GET("/:id/qr", s.DownloadQR)
	}

	api.POST("/credentials", s.UploadCredential)
	api.GET("/channels", s.ListChannels)
}

func (s *Server) registerOperatorRoutes() {
	ops := s.engine.Group("/api/retry")

	ops.GET("/queue", s.RetryQueue)
	ops.POST("/invoices/:id/reset", s.ResetRetry)
}
