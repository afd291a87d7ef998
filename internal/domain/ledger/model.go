// Package ledger provides the product stock ledger: an append-mostly
// collection of purchase entries with chronologically consistent
// running-balance snapshots.
package ledger

import (
	"sort"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Entry is one immutable record of a stock-increasing purchase.
//
// Entries are ordered by (effective_date, created_at); the entry id
// (UUIDv7, time-ordered) stabilizes the order when both collide.
// The only field ever rewritten after insert is StockAfter, and only by
// the recalculator under the product lock.
type Entry struct {
	ID        id.ID `db:"id" json:"id"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// EffectiveDate is the business date the purchase is recorded
	// against. May be earlier than CreatedAt for backdated corrections.
	EffectiveDate time.Time `db:"effective_date" json:"effectiveDate"`

	// CreatedAt is the wall-clock insertion time. Tie-breaker only,
	// never the primary ordering key.
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	// QuantityDelta is the signed quantity added. Purchases are
	// positive; negative deltas belong to the deduction collaborator.
	QuantityDelta int64 `db:"quantity_delta" json:"quantityDelta"`

	// StockAfter is the running balance immediately after this entry,
	// given chronological order.
	StockAfter int64 `db:"stock_after" json:"stockAfter"`

	// IdempotencyKey is caller-supplied, unique per logical purchase.
	IdempotencyKey string `db:"idempotency_key" json:"idempotencyKey"`

	// Purchase cost details, informational only.
	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	TotalCost types.Money `db:"total_cost" json:"totalCost"`
	Vendor    string      `db:"vendor" json:"vendor,omitempty"`
}

// Before reports whether e sorts chronologically before other.
func (e *Entry) Before(other *Entry) bool {
	if !e.EffectiveDate.Equal(other.EffectiveDate) {
		return e.EffectiveDate.Before(other.EffectiveDate)
	}
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.ID.String() < other.ID.String()
}

// SortChronological sorts entries by (effective_date, created_at, id)
// ascending, in place.
func SortChronological(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Before(&entries[j])
	})
}

// InsertChronological returns a new slice with entry placed at its
// chronological position among entries (which must already be sorted),
// and the index it was inserted at.
func InsertChronological(entries []Entry, entry Entry) ([]Entry, int) {
	i := sort.Search(len(entries), func(i int) bool {
		return entry.Before(&entries[i])
	})

	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entries[:i]...)
	out = append(out, entry)
	out = append(out, entries[i:]...)
	return out, i
}
