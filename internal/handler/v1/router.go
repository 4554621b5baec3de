package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/config"
	"github.com/pharmaops/doseflow/internal/domain"
	"github.com/pharmaops/doseflow/internal/service"
	"github.com/pharmaops/doseflow/pkg/auth"
	"github.com/pharmaops/doseflow/pkg/metrics"
)

type Router struct {
	AuthSvc     *service.AuthService
	CalcSvc     *service.CalculationService
	IntervalSvc *service.IntervalService
	DispSvc     *service.DispensationService
	ReportSvc   *service.ReportService
	JWTManager  *auth.JWTManager
	Metrics     *metrics.Collector
	Log         *zap.Logger
	Cfg         *config.Config
}

// Build assembles the gin engine with middleware and all v1 routes.
func (r *Router) Build() *gin.Engine {
	if r.Cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(r.Log))
	engine.Use(Metrics(r.Metrics))
	if r.Cfg.Tracing.Enabled {
		engine.Use(Tracing(r.Cfg.Tracing.ServiceName))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": r.Cfg.App.Version})
	})
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	authHandler := NewAuthHandler(r.AuthSvc)
	calcHandler := NewCalculationHandler(r.CalcSvc)
	intervalHandler := NewIntervalHandler(r.IntervalSvc)
	dispHandler := NewDispensationHandler(r.DispSvc)
	reportHandler := NewReportHandler(r.ReportSvc)

	v1 := engine.Group("/api/v1")

	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/refresh", authHandler.Refresh)

	authed := v1.Group("")
	authed.Use(Authenticate(r.JWTManager))

	// Dosage calculation and unit conversion.
	authed.GET("/units", calcHandler.Units)
	authed.POST("/convert", calcHandler.Convert)
	authed.POST("/calculate", calcHandler.CalculateRaw)
	authed.POST("/config/validate", calcHandler.ValidateConfig)
	authed.POST("/medications/:id/calculate", calcHandler.Calculate)
	authed.GET("/medications/:id/config", calcHandler.GetConfig)

	// Configuration is restricted to pharmacists and admins.
	configure := authed.Group("")
	configure.Use(RequireRoles(domain.RoleAdmin, domain.RolePharmacist))
	configure.PUT("/medications/:id/config", calcHandler.SaveConfig)
	configure.DELETE("/medications/:id/config", calcHandler.DeactivateConfig)
	configure.PUT("/medications/:id/interval", intervalHandler.ConfigureInterval)
	configure.POST("/controls/:id/early-release", intervalHandler.AuthorizeEarlyRelease)

	// Interval status and dispensation, open to all staff roles.
	authed.GET("/patients/:id/medications/:medicationId/interval-status", intervalHandler.CheckStatus)
	authed.GET("/patients/:id/interval-history", intervalHandler.History)
	authed.GET("/patients/:id/dispensations", dispHandler.ListByPatient)
	authed.POST("/dispensations", dispHandler.Dispense)
	authed.GET("/dispensations/:id", dispHandler.GetByID)

	// Operational reports.
	reports := authed.Group("/reports")
	reports.Use(RequireRoles(domain.RoleAdmin, domain.RolePharmacist))
	reports.GET("/low-stock", reportHandler.LowStock)
	reports.GET("/near-expiry", reportHandler.NearExpiry)
	reports.GET("/upcoming-releases", reportHandler.UpcomingReleases)
	reports.GET("/early-releases", reportHandler.RecentEarlyReleases)

	// Control deactivation is admin-only.
	admin := authed.Group("")
	admin.Use(RequireRoles(domain.RoleAdmin))
	admin.DELETE("/controls/:id", intervalHandler.DeactivateControl)

	return engine
}
