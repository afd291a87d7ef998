package ledger

import (
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Adjustment is a stock_after rewrite produced by recalculation.
type Adjustment struct {
	EntryID    id.ID
	StockAfter int64
}

// Recalculate folds a chronologically sorted ledger left with a running
// balance of zero and returns the rewrites needed to make every stored
// stock_after match the fold. Entries are updated in place so callers
// can read the corrected snapshots directly.
//
// By construction the rewrites are the inserted entry plus every entry
// strictly after it; entries before the insertion point are untouched
// by the fold.
//
// If any recomputed balance would be negative the whole recalculation
// is rejected with an invalid-state error and callers must apply
// nothing.
func Recalculate(productID id.ID, entries []Entry) ([]Adjustment, int64, error) {
	var running int64
	var changed []Adjustment

	for i := range entries {
		running += entries[i].QuantityDelta
		if running < 0 {
			return nil, 0, apperror.NewInvalidState(productID, running).
				WithDetail("entry_id", entries[i].ID.String()).
				WithDetail("effective_date", entries[i].EffectiveDate)
		}
		if entries[i].StockAfter != running {
			entries[i].StockAfter = running
			changed = append(changed, Adjustment{EntryID: entries[i].ID, StockAfter: running})
		}
	}

	return changed, running, nil
}

// VerifyChain checks the core invariant: sorting by (effective_date,
// created_at) and folding quantity_delta reproduces every stored
// stock_after exactly. Entries must already be sorted.
func VerifyChain(entries []Entry) error {
	var running int64
	for i := range entries {
		running += entries[i].QuantityDelta
		if entries[i].StockAfter != running {
			return fmt.Errorf("entry %s: stock_after %d, chronological fold gives %d",
				entries[i].ID, entries[i].StockAfter, running)
		}
	}
	return nil
}
