// Package projection keeps Product.current_stock authoritative without
// callers reasoning about ledger internals. It is the reconciliation
// path: verify, detect drift, optionally repair.
package projection

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/txlog"
	"stockledger/pkg/logger"
)

// Snapshot is the result of projecting a product's ledger.
type Snapshot struct {
	ProductID    id.ID     `json:"productId"`
	StoredStock  int64     `json:"storedStock"`
	DerivedStock int64     `json:"derivedStock"`
	Drift        bool      `json:"drift"`
	EntryCount   int       `json:"entryCount"`
	CheckedAt    time.Time `json:"checkedAt"`

	// Repaired is set by Repair when the product row was rewritten.
	Repaired bool `json:"repaired,omitempty"`
}

// Projector re-derives current stock purely from the ledger and keeps
// the product row consistent with it. It is the only writer of
// Product.current_stock besides the atomic mutator, and its repair path
// goes through the same lock discipline.
type Projector struct {
	products product.Repository
	entries  ledger.Repository
	logs     txlog.Repository
	txm      tx.ReadOnlyManager
	window   ledger.Window
	now      func() time.Time
}

// NewProjector creates a projector with injected collaborators.
func NewProjector(
	products product.Repository,
	entries ledger.Repository,
	logs txlog.Repository,
	txm tx.ReadOnlyManager,
	window ledger.Window,
) *Projector {
	return &Projector{
		products: products,
		entries:  entries,
		logs:     logs,
		txm:      txm,
		window:   window,
		now:      time.Now,
	}
}

// WithClock overrides the projector clock. Tests only.
func (p *Projector) WithClock(now func() time.Time) *Projector {
	p.now = now
	return p
}

// Project re-derives the product's current stock from the ledger and
// compares it against the stored value. Read-only: drift is reported,
// never fixed here. Concurrent mutations may make the stored figure
// momentarily stale; staleness is bounded by the mutation's lock hold.
func (p *Projector) Project(ctx context.Context, productID id.ID) (*Snapshot, error) {
	var (
		prod    *product.Product
		entries []ledger.Entry
	)
	// One read-only transaction: stored and derived figures come from
	// the same snapshot.
	err := p.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if prod, err = p.products.GetByID(ctx, productID); err != nil {
			return err
		}
		if entries, err = p.entries.EntriesFor(ctx, productID); err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ProductID:    productID,
		StoredStock:  prod.CurrentStock,
		DerivedStock: p.window.LatestCurrentStock(entries),
		EntryCount:   len(entries),
		CheckedAt:    p.now().UTC(),
	}
	snap.Drift = snap.StoredStock != snap.DerivedStock

	if snap.Drift {
		logger.Warn(ctx, "stock drift detected",
			"product_id", productID,
			"stored", snap.StoredStock,
			"derived", snap.DerivedStock,
		)
	}

	return snap, nil
}

// Repair re-derives current stock under the same lock discipline as the
// mutator and rewrites the product row when it drifted. It also mends a
// broken stock_after chain, since drift usually means an out-of-band
// write corrupted one or the other. There is no unlocked write path.
func (p *Projector) Repair(ctx context.Context, productID id.ID) (*Snapshot, error) {
	startedAt := p.now().UTC()
	var snap *Snapshot

	err := p.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		prod, err := p.products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		lockedAt := p.now().UTC()
		// Same rule as the mutator: once locked, the repair finishes.
		ctx = context.WithoutCancel(ctx)

		entries, err := p.entries.EntriesFor(ctx, productID)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}

		adjustments, _, err := ledger.Recalculate(productID, entries)
		if err != nil {
			return err
		}
		if err := ledger.ApplyAdjustments(ctx, p.entries, adjustments); err != nil {
			return err
		}

		derived := p.window.LatestCurrentStock(entries)
		snap = &Snapshot{
			ProductID:    productID,
			StoredStock:  prod.CurrentStock,
			DerivedStock: derived,
			EntryCount:   len(entries),
			CheckedAt:    p.now().UTC(),
			Drift:        prod.CurrentStock != derived || len(adjustments) > 0,
		}

		if !snap.Drift {
			return nil
		}

		if err := p.products.UpdateStock(ctx, productID, derived, p.now().UTC()); err != nil {
			return err
		}
		snap.Repaired = true

		rec := &txlog.Record{
			ID:            id.New(),
			ProductID:     productID,
			Operation:     txlog.OperationDriftRepair,
			PreviousStock: prod.CurrentStock,
			NewStock:      derived,
			QuantityDelta: derived - prod.CurrentStock,
			StartedAt:     startedAt,
			LockedAt:      &lockedAt,
			FinishedAt:    p.now().UTC(),
			Outcome:       txlog.OutcomeSuccess,
		}
		if prod.CurrentStock != derived {
			// Preserve what was found, not just what was written.
			rec.ErrorDetail = apperror.NewDrift(productID, prod.CurrentStock, derived).Error()
		}
		return p.logs.Record(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	if snap.Repaired {
		logger.Info(ctx, "stock drift repaired",
			"product_id", productID,
			"stored", snap.StoredStock,
			"derived", snap.DerivedStock,
		)
	}
	return snap, nil
}
