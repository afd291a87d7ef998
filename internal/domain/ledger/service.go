package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/txlog"
	"stockledger/pkg/logger"
)

// ApplyPurchaseCommand describes one purchase to record.
type ApplyPurchaseCommand struct {
	ProductID     id.ID
	Quantity      int64
	EffectiveDate time.Time

	// IdempotencyKey must be unique per logical purchase; re-invocation
	// with the same key is a no-op returning the original entry.
	IdempotencyKey string

	// Optional purchase cost details.
	UnitCost types.Money
	Vendor   string
}

func (c *ApplyPurchaseCommand) validate() error {
	if id.IsNil(c.ProductID) {
		return apperror.NewValidation("product id is required")
	}
	if c.Quantity <= 0 {
		return apperror.NewValidation("quantity must be a positive integer").
			WithDetail("quantity", c.Quantity)
	}
	if c.EffectiveDate.IsZero() {
		return apperror.NewValidation("effective date is required")
	}
	if c.IdempotencyKey == "" {
		return apperror.NewValidation("idempotency key is required")
	}
	return nil
}

// Service is the atomic stock mutator: the sole entry point for adding
// a purchase to a product's ledger. It combines the non-blocking row
// lock, balance computation, ledger writes and audit logging in one
// transaction per attempt.
type Service struct {
	products product.Repository
	entries  Repository
	logs     txlog.Repository
	txm      tx.Manager
	window   Window
	now      func() time.Time
}

// NewService creates the mutator. All collaborators are injected; there
// is no process-wide storage handle anywhere in the system.
func NewService(
	products product.Repository,
	entries Repository,
	logs txlog.Repository,
	txm tx.Manager,
	window Window,
) *Service {
	return &Service{
		products: products,
		entries:  entries,
		logs:     logs,
		txm:      txm,
		window:   window,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ApplyPurchase records a purchase against a product's ledger.
//
// The whole unit of work runs in one transaction under an exclusive,
// non-blocking product row lock: a failure at any step after the lock
// is granted rolls back every staged write, including stock_after
// rewrites. Once the lock is held the operation runs to completion
// regardless of caller cancellation so the chain invariant is never
// left violated.
//
// Failure kinds: contention (transient, retry with backoff), invalid
// state (would produce negative stock, permanent), not found (unknown
// product, permanent), storage (transient, retry bounded).
func (s *Service) ApplyPurchase(ctx context.Context, cmd ApplyPurchaseCommand) (*Entry, error) {
	startedAt := s.now().UTC()
	if err := cmd.validate(); err != nil {
		// Rejected inputs still leave audit evidence.
		s.recordFailure(ctx, cmd, startedAt, nil, 0, err)
		return nil, err
	}

	var (
		result        *Entry
		replayed      bool
		lockedAt      *time.Time
		previousStock int64
		newStock      int64
	)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		prod, err := s.products.GetForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		t := s.now().UTC()
		lockedAt = &t
		// Past this point the attempt runs to completion: abandoning a
		// half-done recalculation on caller cancellation would waste
		// the lock and force an immediate retry. The statement timeout
		// still bounds every step.
		ctx = context.WithoutCancel(ctx)
		// Never trust a previously cached figure: re-read under the lock.
		previousStock = prod.CurrentStock

		// Same key, same result: checked under the lock so a retried
		// request racing its original cannot double-apply.
		existing, err := s.entries.GetByIdempotencyKey(ctx, cmd.ProductID, cmd.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result, replayed = existing, true
			return nil
		}

		entries, err := s.entries.EntriesFor(ctx, cmd.ProductID)
		if err != nil {
			return err
		}

		entry := &Entry{
			ID:             id.New(),
			ProductID:      cmd.ProductID,
			EffectiveDate:  cmd.EffectiveDate.UTC(),
			CreatedAt:      s.now().UTC(),
			QuantityDelta:  cmd.Quantity,
			IdempotencyKey: cmd.IdempotencyKey,
			UnitCost:       cmd.UnitCost,
			TotalCost:      cmd.UnitCost.Mul(decimal.NewFromInt(cmd.Quantity)),
			Vendor:         cmd.Vendor,
		}

		if s.isChronologicalTail(entries, entry) && s.window.IsCurrent(entry.EffectiveDate) {
			// Fast path: the entry is the newest in chronological order,
			// so no other snapshot changes and the new balance is direct.
			entry.StockAfter = previousStock + cmd.Quantity
			if err := s.entries.Append(ctx, entry); err != nil {
				return err
			}
			newStock = entry.StockAfter
		} else {
			newStock, err = s.insertAndRecalculate(ctx, entries, entry)
			if err != nil {
				return err
			}
		}

		if err := s.products.UpdateStock(ctx, cmd.ProductID, newStock, s.now().UTC()); err != nil {
			return err
		}

		rec := &txlog.Record{
			ID:            id.New(),
			ProductID:     cmd.ProductID,
			EntryID:       &entry.ID,
			Operation:     txlog.OperationPurchase,
			PreviousStock: previousStock,
			NewStock:      newStock,
			QuantityDelta: cmd.Quantity,
			StartedAt:     startedAt,
			LockedAt:      lockedAt,
			FinishedAt:    s.now().UTC(),
			Outcome:       txlog.OutcomeSuccess,
		}
		if err := s.logs.Record(ctx, rec); err != nil {
			return err
		}

		result = entry
		return nil
	})

	if err != nil {
		s.recordFailure(ctx, cmd, startedAt, lockedAt, previousStock, err)
		return nil, err
	}

	if replayed {
		logger.Info(ctx, "purchase replayed",
			"product_id", cmd.ProductID,
			"idempotency_key", cmd.IdempotencyKey,
			"entry_id", result.ID,
		)
		return result, nil
	}

	logger.Info(ctx, "purchase applied",
		"product_id", cmd.ProductID,
		"entry_id", result.ID,
		"quantity", cmd.Quantity,
		"previous_stock", previousStock,
		"new_stock", newStock,
		"historical", !s.window.IsCurrent(result.EffectiveDate),
	)
	return result, nil
}

// isChronologicalTail reports whether entry sorts after every existing
// entry, i.e. appending it rewrites nothing.
func (s *Service) isChronologicalTail(entries []Entry, entry *Entry) bool {
	if len(entries) == 0 {
		return true
	}
	last := entries[len(entries)-1]
	return last.Before(entry)
}

// insertAndRecalculate places the entry at its chronological position,
// recomputes stock_after for it and every later entry, persists only
// the snapshots that changed, and returns the re-derived current stock.
// A historical insert never changes "now", so the product figure comes
// from the window rule rather than the inserted row.
func (s *Service) insertAndRecalculate(ctx context.Context, entries []Entry, entry *Entry) (int64, error) {
	all, pos := InsertChronological(entries, *entry)

	adjustments, _, err := Recalculate(entry.ProductID, all)
	if err != nil {
		return 0, err
	}
	entry.StockAfter = all[pos].StockAfter

	if err := s.entries.Append(ctx, entry); err != nil {
		return 0, err
	}
	// Appended with the recomputed value already.
	rewrites := make([]Adjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.EntryID != entry.ID {
			rewrites = append(rewrites, adj)
		}
	}
	if err := ApplyAdjustments(ctx, s.entries, rewrites); err != nil {
		return 0, err
	}

	logger.Debug(ctx, "ledger chain recalculated",
		"product_id", entry.ProductID,
		"inserted_at", pos,
		"rewritten", len(adjustments),
	)

	return s.window.LatestCurrentStock(all), nil
}

// recordFailure writes the audit record for a failed attempt in its own
// transaction: the mutation rolled back, the evidence must not.
func (s *Service) recordFailure(ctx context.Context, cmd ApplyPurchaseCommand, startedAt time.Time, lockedAt *time.Time, previousStock int64, cause error) {
	rec := &txlog.Record{
		ID:            id.New(),
		ProductID:     cmd.ProductID,
		Operation:     txlog.OperationPurchase,
		PreviousStock: previousStock,
		QuantityDelta: cmd.Quantity,
		StartedAt:     startedAt,
		LockedAt:      lockedAt,
		FinishedAt:    s.now().UTC(),
		Outcome:       classifyOutcome(cause),
		ErrorDetail:   cause.Error(),
	}

	// Survive caller cancellation: the attempt itself is already over.
	logCtx := context.WithoutCancel(ctx)
	if err := s.logs.Record(logCtx, rec); err != nil {
		logger.Warn(ctx, "failed to record mutation attempt",
			"product_id", cmd.ProductID,
			"outcome", rec.Outcome,
			"error", err,
		)
	}
}

func classifyOutcome(err error) txlog.Outcome {
	switch {
	case apperror.IsContention(err):
		return txlog.OutcomeContention
	case apperror.IsValidation(err), apperror.IsInvalidState(err):
		return txlog.OutcomeValidationFailure
	case apperror.IsNotFound(err):
		return txlog.OutcomeNotFound
	default:
		return txlog.OutcomeStorageFailure
	}
}

// History returns the product's full ledger in chronological order, for
// audit surfaces.
func (s *Service) History(ctx context.Context, productID id.ID) ([]Entry, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	entries, err := s.entries.EntriesFor(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return entries, nil
}
