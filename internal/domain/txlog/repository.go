package txlog

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines append-only storage for transaction log records.
type Repository interface {
	// Record appends one attempt record. Records for successful
	// mutations are written inside the mutation's transaction; failure
	// records are written in their own transaction so they survive the
	// rollback.
	Record(ctx context.Context, rec *Record) error

	// ListForProduct returns the newest records first, up to limit.
	ListForProduct(ctx context.Context, productID id.ID, limit int) ([]Record, error)
}
