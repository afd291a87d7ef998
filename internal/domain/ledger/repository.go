package ledger

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines durable storage and ordered retrieval of ledger
// entries. Implementations must guarantee read-committed isolation or
// stronger: no entry is visible to readers before its owning
// transaction commits.
type Repository interface {
	// Append inserts a new entry. Fails with a storage error on
	// constraint violation (duplicate id, unknown product) and with a
	// duplicate error when the idempotency key already exists.
	Append(ctx context.Context, entry *Entry) error

	// EntriesFor returns all entries for the product sorted ascending
	// by (effective_date, created_at). The result is fully
	// materialized: the recalculator needs the whole order.
	EntriesFor(ctx context.Context, productID id.ID) ([]Entry, error)

	// UpdateStockAfter rewrites the running-balance snapshot of one
	// entry. It never touches quantity_delta or effective_date.
	UpdateStockAfter(ctx context.Context, entryID id.ID, value int64) error

	// GetByIdempotencyKey returns the product's entry recorded under
	// key, or (nil, nil) when no such entry exists. Keys are scoped to
	// the product: the same key against another product is a distinct
	// purchase.
	GetByIdempotencyKey(ctx context.Context, productID id.ID, key string) (*Entry, error)
}

// AdjustmentApplier is an optional repository capability: persisting a
// whole set of stock_after rewrites in one round trip.
type AdjustmentApplier interface {
	ApplyAdjustments(ctx context.Context, adjustments []Adjustment) error
}

// ApplyAdjustments persists recalculation rewrites, batched when the
// repository supports it and entry by entry otherwise.
func ApplyAdjustments(ctx context.Context, repo Repository, adjustments []Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	if applier, ok := repo.(AdjustmentApplier); ok {
		return applier.ApplyAdjustments(ctx, adjustments)
	}
	for _, adj := range adjustments {
		if err := repo.UpdateStockAfter(ctx, adj.EntryID, adj.StockAfter); err != nil {
			return err
		}
	}
	return nil
}
