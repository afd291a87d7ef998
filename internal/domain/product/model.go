// Package product provides the product record the ledger projects onto.
// Product creation belongs to the catalog collaborator; this core only
// reads the row and rewrites its stock fields under the mutation lock.
package product

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Product is the catalog record carrying the authoritative stock figure.
//
// CurrentStock is never edited independently: it always equals the
// ledger-derived value (stock_after of the latest current-window entry),
// written back only by the atomic mutator and the projector.
type Product struct {
	ID   id.ID  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`

	CurrentStock int64 `db:"current_stock" json:"currentStock"`

	// LastSyncedAt is the time of the last projection write.
	LastSyncedAt *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// New creates a product with zero stock, the only valid starting state.
func New(name string) *Product {
	return &Product{
		ID:        id.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks catalog constraints before persistence.
func (p *Product) Validate() error {
	if p.Name == "" {
		return apperror.NewValidation("product name is required")
	}
	if p.CurrentStock != 0 {
		return apperror.NewValidation("new products must start with zero stock")
	}
	return nil
}
