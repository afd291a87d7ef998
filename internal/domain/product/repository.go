package product

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Repository defines product storage operations.
//
// GetForUpdate is the try-lock capability the atomic mutator is built
// on: acquisition is non-blocking and fails fast with a contention
// error when another mutation holds the row. The lock is released when
// the surrounding transaction commits or rolls back.
type Repository interface {
	// Create inserts a product (catalog boundary, zero initial stock).
	Create(ctx context.Context, p *Product) error

	// GetByID returns the product or a not-found error.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// GetForUpdate returns the product holding an exclusive row lock.
	// Must run inside a transaction. Fails immediately with a
	// contention error if the lock is held elsewhere; never queues.
	GetForUpdate(ctx context.Context, productID id.ID) (*Product, error)

	// UpdateStock rewrites current_stock and last_synced_at. Callers
	// must hold the row lock from GetForUpdate.
	UpdateStock(ctx context.Context, productID id.ID, stock int64, syncedAt time.Time) error

	// ListIDs returns ids of all products, for reconciliation sweeps.
	ListIDs(ctx context.Context) ([]id.ID, error)
}
