package memory

import (
	"context"
	"testing"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
)

func seedProduct(t *testing.T, s *Store) *product.Product {
	t.Helper()
	p := product.New("widget")
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestGetForUpdateRequiresTransaction(t *testing.T) {
	s := New()
	p := seedProduct(t, s)

	if _, err := s.GetForUpdate(context.Background(), p.ID); err == nil {
		t.Fatal("lock acquired outside a transaction")
	}
}

func TestGetForUpdateContention(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.GetForUpdate(ctx, p.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()

	<-locked

	// Second transaction must fail fast, not wait.
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.GetForUpdate(ctx, p.ID)
		return err
	})
	if !apperror.IsContention(err) {
		t.Fatalf("expected contention, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder failed: %v", err)
	}

	// Lock released with the transaction: a fresh attempt succeeds.
	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.GetForUpdate(ctx, p.ID)
		return err
	})
	if err != nil {
		t.Fatalf("lock not released after transaction: %v", err)
	}
}

func TestGetForUpdateReentrantWithinTransaction(t *testing.T) {
	s := New()
	p := seedProduct(t, s)

	// Nested RunInTransaction shares the scope; the lock from the outer
	// call stays held but the inner call sees the same transaction.
	err := s.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := s.GetForUpdate(ctx, p.ID); err != nil {
			return err
		}
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.GetByID(ctx, p.ID)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested transaction failed: %v", err)
	}
}

func TestAppendKeepsChronologicalOrder(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{base, base.AddDate(0, 0, -10), base.AddDate(0, 0, -5)}
	for i, d := range dates {
		err := s.Append(ctx, &ledger.Entry{
			ID:             id.New(),
			ProductID:      p.ID,
			EffectiveDate:  d,
			CreatedAt:      base,
			QuantityDelta:  1,
			IdempotencyKey: string(rune('a' + i)),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.EntriesFor(ctx, p.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].EffectiveDate.Before(entries[i-1].EffectiveDate) {
			t.Fatal("entries not in chronological order")
		}
	}
}

func TestAppendRejectsDuplicateIdempotencyKey(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	e := &ledger.Entry{ID: id.New(), ProductID: p.ID, EffectiveDate: time.Now(), IdempotencyKey: "dup"}
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("first append: %v", err)
	}

	e2 := &ledger.Entry{ID: id.New(), ProductID: p.ID, EffectiveDate: time.Now(), IdempotencyKey: "dup"}
	if err := s.Append(ctx, e2); err == nil {
		t.Fatal("duplicate idempotency key accepted")
	}

	found, err := s.GetByIdempotencyKey(ctx, p.ID, "dup")
	if err != nil || found == nil || found.ID != e.ID {
		t.Fatalf("lookup by key = %v, %v; want original entry", found, err)
	}

	missing, err := s.GetByIdempotencyKey(ctx, p.ID, "absent")
	if err != nil || missing != nil {
		t.Fatalf("absent key = %v, %v; want nil, nil", missing, err)
	}
}

func TestAppendScopesIdempotencyKeyPerProduct(t *testing.T) {
	s := New()
	a := seedProduct(t, s)
	b := seedProduct(t, s)
	ctx := context.Background()

	ea := &ledger.Entry{ID: id.New(), ProductID: a.ID, EffectiveDate: time.Now(), IdempotencyKey: "shared"}
	eb := &ledger.Entry{ID: id.New(), ProductID: b.ID, EffectiveDate: time.Now(), IdempotencyKey: "shared"}
	if err := s.Append(ctx, ea); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := s.Append(ctx, eb); err != nil {
		t.Fatalf("same key on another product rejected: %v", err)
	}

	got, err := s.GetByIdempotencyKey(ctx, b.ID, "shared")
	if err != nil || got == nil || got.ID != eb.ID {
		t.Fatalf("lookup = %v, %v; want product b's entry", got, err)
	}
}

func TestTransactionWritesInvisibleUntilCommit(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
		e := &ledger.Entry{ID: id.New(), ProductID: p.ID, EffectiveDate: time.Now(), IdempotencyKey: "staged"}
		if err := s.Append(txCtx, e); err != nil {
			return err
		}

		// A reader outside the transaction must not see the entry yet.
		entries, err := s.EntriesFor(context.Background(), p.ID)
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			t.Errorf("uncommitted entry visible to readers: %d entries", len(entries))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	entries, _ := s.EntriesFor(ctx, p.ID)
	if len(entries) != 1 {
		t.Fatalf("committed entries = %d, want 1", len(entries))
	}
}

func TestFailedTransactionDiscardsStagedWrites(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	boom := apperror.NewStorage(nil)
	err := s.RunInTransaction(ctx, func(txCtx context.Context) error {
		e := &ledger.Entry{ID: id.New(), ProductID: p.ID, EffectiveDate: time.Now(), IdempotencyKey: "doomed"}
		if err := s.Append(txCtx, e); err != nil {
			return err
		}
		return boom
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	entries, _ := s.EntriesFor(ctx, p.ID)
	if len(entries) != 0 {
		t.Fatalf("rolled-back transaction left %d entries", len(entries))
	}

	// The key never committed, so it is free for a fresh attempt.
	e := &ledger.Entry{ID: id.New(), ProductID: p.ID, EffectiveDate: time.Now(), IdempotencyKey: "doomed"}
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("key still taken after rollback: %v", err)
	}
}

func TestGetByIDReturnsCopy(t *testing.T) {
	s := New()
	p := seedProduct(t, s)
	ctx := context.Background()

	got, err := s.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.CurrentStock = 500

	again, _ := s.GetByID(ctx, p.ID)
	if again.CurrentStock != 0 {
		t.Error("mutating a returned product leaked into the store")
	}
}
