// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// DB backs the readiness probe.
	DB handlers.Pinger

	Reports handlers.ReportsService

	// Logger for request logging
	Logger *logger.Logger

	Version string
	// Debug switches gin into debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	registerReportRoutes(v1, cfg)

	return router
}

// registerReportRoutes registers the stock report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	h := handlers.NewReportsHandler(handlers.NewBaseHandler(), cfg.Reports)

	r := rg.Group("/reports")
	{
		r.GET("/stock-ageing", h.GetStockAgeing)
		r.GET("/stock-balance", h.GetStockBalance)
		r.GET("/stock-reconciliation", h.GetStockReconciliation)
	}
}
