package postgres

import (
	"context"
	"fmt"

	"stockledger/pkg/logger"
)

// schemaStatements creates the ledger tables when they do not exist.
// Statements are idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL,
		current_stock  BIGINT NOT NULL DEFAULT 0,
		last_synced_at TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id              UUID PRIMARY KEY,
		product_id      UUID NOT NULL REFERENCES products(id),
		effective_date  TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		quantity_delta  BIGINT NOT NULL,
		stock_after     BIGINT NOT NULL,
		idempotency_key TEXT NOT NULL,
		unit_cost       NUMERIC(15,4) NOT NULL DEFAULT 0,
		total_cost      NUMERIC(15,4) NOT NULL DEFAULT 0,
		vendor          TEXT NOT NULL DEFAULT ''
	)`,

	// Idempotency keys are unique per product, not globally: the same
	// key against another product is a distinct purchase.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_entries_product_key
		ON ledger_entries (product_id, idempotency_key)`,

	// Chronological retrieval is the hot read path of recalculation.
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_chronological
		ON ledger_entries (product_id, effective_date, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS stock_transaction_log (
		id             UUID PRIMARY KEY,
		product_id     UUID NOT NULL,
		entry_id       UUID,
		operation      TEXT NOT NULL,
		previous_stock BIGINT NOT NULL,
		new_stock      BIGINT NOT NULL,
		quantity_delta BIGINT NOT NULL,
		started_at     TIMESTAMPTZ NOT NULL,
		locked_at      TIMESTAMPTZ,
		finished_at    TIMESTAMPTZ NOT NULL,
		outcome        TEXT NOT NULL,
		error_detail   TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stock_transaction_log_product
		ON stock_transaction_log (product_id, started_at)`,
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	logger.Info(ctx, "database schema ensured")
	return nil
}
