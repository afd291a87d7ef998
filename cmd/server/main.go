// Package main is the entry point for the stock ledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/product_repo"
	"stockledger/internal/infrastructure/storage/postgres/txlog_repo"
	"stockledger/pkg/logger"
)

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting stockledger server")

	// --- Database connection ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if getEnv("DB_AUTO_MIGRATE", "true") == "true" {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("failed to ensure schema", "error", err)
		}
		log.Info("schema ensured")
	}

	// --- Transaction manager and repositories ---
	txOpts := postgres.DefaultTxOptions()
	if timeout := getEnvDuration("DB_STATEMENT_TIMEOUT", 0); timeout > 0 {
		txOpts.StatementTimeout = timeout
	}
	txm := postgres.NewTxManagerWithOptions(pool, txOpts)

	products := product_repo.NewRepo(txm)
	entries := ledger_repo.NewRepo(txm)
	logs := txlog_repo.NewRepo(txm)

	// --- Domain services ---
	window := ledger.DefaultWindow()
	if graceDays := getEnvInt("STOCK_WINDOW_GRACE_DAYS", -1); graceDays >= 0 {
		window.GraceDays = graceDays
	}

	service := ledger.NewService(products, entries, logs, txm, window)
	projector := projection.NewProjector(products, entries, logs, txm, window)

	retry := ledger.DefaultRetryConfig()
	if attempts := getEnvInt("MUTATION_RETRY_ATTEMPTS", 0); attempts > 0 {
		retry.MaxAttempts = attempts
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:      pool,
		Logger:    log,
		Products:  products,
		Service:   service,
		Projector: projector,
		TxLog:     logs,
		Retry:     retry,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
