// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalogs/location"
	"stockledger/internal/domain/catalogs/product"
	"stockledger/internal/domain/engine"
	"stockledger/internal/domain/reconcile"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/document_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/projection_repo"
	"stockledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// TxManager coordinates transactions for all repositories
	TxManager *postgres.TxManager

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1 - everything behind JWT
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))

	registerRoutes(v1, cfg)

	return router
}

// registerRoutes builds the repository/service graph and mounts all
// domain endpoints.
func registerRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()

	// Repositories share one TxManager so nested operations reuse the
	// caller's transaction.
	movementRepo := ledger_repo.NewMovementRepo(cfg.TxManager)
	stockRepo := projection_repo.NewStockRepo(cfg.TxManager)
	docSource := document_repo.NewSourceRepo(cfg.TxManager)
	productRepo := catalog_repo.NewProductRepo(cfg.TxManager)
	locationRepo := catalog_repo.NewLocationRepo(cfg.TxManager)

	auditService, err := postgres.NewAuditService(cfg.TxManager)
	if err != nil {
		panic("failed to create audit service: " + err.Error())
	}

	productService := product.NewService(productRepo, cfg.TxManager)
	locationService := location.NewService(locationRepo, cfg.TxManager)

	engineService := engine.NewService(
		movementRepo, stockRepo, productService, locationService,
		auditService, cfg.TxManager,
	)
	calculator := reconcile.NewCalculator(stockRepo, movementRepo, docSource, locationRepo)
	applier := reconcile.NewApplier(calculator, stockRepo, engineService, auditService, cfg.TxManager)

	// --- CATALOGS ---
	catalogs := rg.Group("/catalog")
	{
		handler := handlers.NewProductHandler(baseHandler, productService)
		handler.RegisterRoutes(catalogs.Group("/products"))
	}
	{
		handler := handlers.NewLocationHandler(baseHandler, locationService)
		handler.RegisterRoutes(catalogs.Group("/locations"))
	}

	// --- MOVEMENTS ---
	{
		handler := handlers.NewMovementHandler(baseHandler, engineService, movementRepo)
		handler.RegisterRoutes(rg.Group("/movements"))
	}

	// --- STOCK PROJECTION ---
	{
		handler := handlers.NewStockHandler(baseHandler, stockRepo)
		handler.RegisterRoutes(rg.Group("/stock"))
	}

	// --- RECONCILIATION ---
	{
		handler := handlers.NewReconciliationHandler(baseHandler, calculator, applier)
		handler.RegisterRoutes(rg.Group("/reconciliation"))
	}
}
