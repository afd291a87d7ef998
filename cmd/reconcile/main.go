// Package main is the reconciliation sweep: it re-derives current stock
// from the ledger for every product, reports drift, and optionally
// repairs it under the same lock discipline the mutator uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/product_repo"
	"stockledger/internal/infrastructure/storage/postgres/txlog_repo"
	"stockledger/pkg/logger"
)

func main() {
	repair := flag.Bool("repair", false, "rewrite drifted product rows instead of only reporting")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall sweep deadline")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	products := product_repo.NewRepo(txm)
	entries := ledger_repo.NewRepo(txm)
	logs := txlog_repo.NewRepo(txm)

	projector := projection.NewProjector(products, entries, logs, txm, ledger.DefaultWindow())

	ids, err := products.ListIDs(ctx)
	if err != nil {
		log.Fatalw("failed to list products", "error", err)
	}
	log.Infow("reconciliation sweep starting", "products", len(ids), "repair", *repair)

	var checked, drifted, repaired, failed int
	for _, productID := range ids {
		var (
			snap *projection.Snapshot
			err  error
		)
		if *repair {
			// A product locked by a live mutation is skipped, not waited
			// on; the next sweep picks it up.
			snap, err = projector.Repair(ctx, productID)
			if apperror.IsContention(err) {
				log.Warnw("product busy, skipping", "product_id", productID)
				continue
			}
		} else {
			snap, err = projector.Project(ctx, productID)
		}
		if err != nil {
			log.Errorw("reconciliation failed", "product_id", productID, "error", err)
			failed++
			continue
		}

		checked++
		if snap.Drift {
			drifted++
		}
		if snap.Repaired {
			repaired++
		}
	}

	log.Infow("reconciliation sweep finished",
		"checked", checked,
		"drifted", drifted,
		"repaired", repaired,
		"failed", failed,
	)

	if failed > 0 {
		os.Exit(1)
	}
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
