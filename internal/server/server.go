package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/revenue/internal/account"
	"github.com/smallbiznis/revenue/internal/audit"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	"github.com/smallbiznis/revenue/internal/authorization"
	"github.com/smallbiznis/revenue/internal/billing"
	"github.com/smallbiznis/revenue/internal/catalog"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	"github.com/smallbiznis/revenue/internal/config"
	"github.com/smallbiznis/revenue/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/revenue/internal/dashboard/domain"
	"github.com/smallbiznis/revenue/internal/events"
	"github.com/smallbiznis/revenue/internal/history"
	historydomain "github.com/smallbiznis/revenue/internal/history/domain"
	"github.com/smallbiznis/revenue/internal/identity"
	"github.com/smallbiznis/revenue/internal/notification"
	"github.com/smallbiznis/revenue/internal/observability"
	obsmiddleware "github.com/smallbiznis/revenue/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revenue/internal/observability/metrics"
	obstracing "github.com/smallbiznis/revenue/internal/observability/tracing"
	"github.com/smallbiznis/revenue/internal/payment"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/providers"
	"github.com/smallbiznis/revenue/internal/providers/pdf"
	"github.com/smallbiznis/revenue/internal/ratelimit"
	"github.com/smallbiznis/revenue/internal/settlement"
	settlementdomain "github.com/smallbiznis/revenue/internal/settlement/domain"
	"github.com/smallbiznis/revenue/internal/user"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains is every feature module the HTTP surface depends on.
var Domains = fx.Options(
	identity.Module,
	authorization.Module,
	audit.Module,
	events.Module,
	user.Module,
	catalog.Module,
	account.Module,
	billing.Module,
	payment.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
	settlement.Module,
	history.Module,
	dashboard.Module,
)

var Module = fx.Module("http.server",
	Domains,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
		s.RegisterAdminRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	billing       *config.BillingConfigHolder
	verifier      *identity.Verifier
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	userSvc       userdomain.Service
	catalogSvc    catalogdomain.Service
	settlementSvc settlementdomain.Service
	historySvc    historydomain.Service
	dashboardSvc  dashboarddomain.Service
	paymentSvc    paymentdomain.Service
	webhookSvc    paymentdomain.WebhookService
	receipts      *notification.Composer
	pdf           pdf.Provider
	limiter       *ratelimit.PaymentLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Billing       *config.BillingConfigHolder
	Verifier      *identity.Verifier
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	UserSvc       userdomain.Service
	CatalogSvc    catalogdomain.Service
	SettlementSvc settlementdomain.Service
	HistorySvc    historydomain.Service
	DashboardSvc  dashboarddomain.Service
	PaymentSvc    paymentdomain.Service
	WebhookSvc    paymentdomain.WebhookService
	Receipts      *notification.Composer
	PDF           pdf.Provider
	Limiter       *ratelimit.PaymentLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		billing:       p.Billing,
		verifier:      p.Verifier,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		userSvc:       p.UserSvc,
		catalogSvc:    p.CatalogSvc,
		settlementSvc: p.SettlementSvc,
		historySvc:    p.HistorySvc,
		dashboardSvc:  p.DashboardSvc,
		paymentSvc:    p.PaymentSvc,
		webhookSvc:    p.WebhookSvc,
		receipts:      p.Receipts,
		pdf:           p.PDF,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterAPIRoutes mounts the citizen-facing API.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// Gateways authenticate with a signature, not a bearer token.
	api.POST("/payments/webhook/:provider", s.HandlePaymentWebhook)

	authed := api.Group("")
	authed.Use(s.Authenticate())

	authed.GET("/me", s.GetMe)

	// -------- Services --------
	authed.GET("/services", s.ListServices)
	authed.GET("/services/:code", s.GetService)
	authed.POST("/services/:code/quote", s.QuoteService)

	// -------- Payments --------
	authed.POST("/payments", s.PaymentRateLimit(), s.SettlePayment)
	authed.GET("/payments/last", s.GetLastPayment)
	authed.GET("/payments/history", s.ListBillingHistory)
	authed.GET("/payments/:transactionId/receipt.pdf", s.DownloadReceipt)
}

// RegisterAdminRoutes mounts the admin API. Every route needs the admin role
// plus a matching casbin policy.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin/api")
	admin.Use(s.Authenticate())
	admin.Use(s.RequireRole(identity.RoleAdmin))

	admin.GET("/dashboard", s.authorize(authorization.ObjectDashboard, authorization.ActionDashboardView), s.GetDashboard)
	admin.GET("/collections", s.authorize(authorization.ObjectCollections, authorization.ActionCollectionsView), s.ListCollections)

	admin.GET("/services", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.AdminListServices)
	admin.POST("/services", s.authorize(authorization.ObjectService, authorization.ActionServiceCreate), s.CreateService)
	admin.GET("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.AdminGetService)
	admin.PATCH("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceUpdate), s.UpdateService)
	admin.DELETE("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceDeactivate), s.DeactivateService)

	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
