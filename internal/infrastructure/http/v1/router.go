// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/txlog"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection (nil in embedded store mode,
	// used by health checks only).
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	Products  product.Repository
	Service   *ledger.Service
	Projector *projection.Projector
	TxLog     txlog.Repository

	// Retry governs contention retries for mutation endpoints.
	Retry ledger.RetryConfig
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

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	productHandler := handlers.NewProductHandler(base, cfg.Products, cfg.Projector, cfg.TxLog)
	ledgerHandler := handlers.NewLedgerHandler(base, cfg.Service, cfg.Retry)

	api := router.Group("/api/v1")
	{
		products := api.Group("/products")
		{
			products.POST("", productHandler.Create)
			products.GET("/:id", productHandler.Get)
			products.GET("/:id/stock", productHandler.Stock)
			products.GET("/:id/transactions", productHandler.Transactions)

			products.POST("/:id/purchases", ledgerHandler.RecordPurchase)
			products.GET("/:id/ledger", ledgerHandler.History)
		}
	}

	return router
}
