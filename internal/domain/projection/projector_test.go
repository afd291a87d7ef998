package projection_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/txlog"
	"stockledger/internal/infrastructure/storage/memory"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*memory.Store, *ledger.Service, *projection.Projector, *product.Product) {
	t.Helper()

	store := memory.New()
	window := ledger.Window{GraceDays: 1, Location: time.UTC, Now: func() time.Time { return testNow }}
	clock := func() time.Time { return testNow }

	service := ledger.NewService(store, store, store, store, window).WithClock(clock)
	projector := projection.NewProjector(store, store, store, store, window).WithClock(clock)

	p := product.New("widget")
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return store, service, projector, p
}

func apply(t *testing.T, service *ledger.Service, p *product.Product, qty int64, date time.Time, key string) {
	t.Helper()
	if _, err := service.ApplyPurchase(context.Background(), ledger.ApplyPurchaseCommand{
		ProductID:      p.ID,
		Quantity:       qty,
		EffectiveDate:  date,
		IdempotencyKey: key,
	}); err != nil {
		t.Fatalf("apply purchase: %v", err)
	}
}

func TestProjectConsistent(t *testing.T) {
	_, service, projector, p := setup(t)
	apply(t, service, p, 10, testNow, "k1")

	snap, err := projector.Project(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if snap.Drift {
		t.Error("fresh mutation reported as drift")
	}
	if snap.StoredStock != 10 || snap.DerivedStock != 10 {
		t.Errorf("stocks = %d/%d, want 10/10", snap.StoredStock, snap.DerivedStock)
	}
	if snap.EntryCount != 1 {
		t.Errorf("entry count = %d, want 1", snap.EntryCount)
	}
}

func TestProjectDetectsDriftWithoutFixing(t *testing.T) {
	store, service, projector, p := setup(t)
	apply(t, service, p, 10, testNow, "k1")

	// Out-of-band write: the product figure no longer matches the ledger.
	if err := store.UpdateStock(context.Background(), p.ID, 99, testNow); err != nil {
		t.Fatalf("corrupt stock: %v", err)
	}

	snap, err := projector.Project(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !snap.Drift {
		t.Fatal("drift not detected")
	}
	if snap.StoredStock != 99 || snap.DerivedStock != 10 {
		t.Errorf("stocks = %d/%d, want 99/10", snap.StoredStock, snap.DerivedStock)
	}

	// Read-only: the stored figure stays wrong until Repair.
	got, _ := store.GetByID(context.Background(), p.ID)
	if got.CurrentStock != 99 {
		t.Errorf("Project rewrote stock to %d", got.CurrentStock)
	}
}

func TestRepairFixesDriftedStock(t *testing.T) {
	store, service, projector, p := setup(t)
	ctx := context.Background()

	apply(t, service, p, 10, testNow, "k1")
	if err := store.UpdateStock(ctx, p.ID, 99, testNow); err != nil {
		t.Fatalf("corrupt stock: %v", err)
	}

	snap, err := projector.Repair(ctx, p.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !snap.Drift || !snap.Repaired {
		t.Fatalf("expected repaired drift, got %+v", snap)
	}

	got, _ := store.GetByID(ctx, p.ID)
	if got.CurrentStock != 10 {
		t.Errorf("current stock = %d, want 10 after repair", got.CurrentStock)
	}

	// The repair leaves its own audit record.
	records, _ := store.ListForProduct(ctx, p.ID, 10)
	var repairs int
	for _, r := range records {
		if r.Operation == txlog.OperationDriftRepair {
			repairs++
			if r.PreviousStock != 99 || r.NewStock != 10 {
				t.Errorf("repair record stocks = %d -> %d, want 99 -> 10", r.PreviousStock, r.NewStock)
			}
			if !strings.Contains(r.ErrorDetail, apperror.CodeDriftDetected) {
				t.Errorf("repair record detail = %q, want drift diagnostic", r.ErrorDetail)
			}
		}
	}
	if repairs != 1 {
		t.Errorf("repair records = %d, want 1", repairs)
	}
}

func TestRepairMendsBrokenChain(t *testing.T) {
	store, service, projector, p := setup(t)
	ctx := context.Background()

	apply(t, service, p, 5, testNow.AddDate(0, 0, -5), "k1")
	apply(t, service, p, 8, testNow, "k2")

	// Corrupt one running balance directly.
	entries, _ := store.EntriesFor(ctx, p.ID)
	if err := store.UpdateStockAfter(ctx, entries[0].ID, 77); err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}

	snap, err := projector.Repair(ctx, p.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !snap.Repaired {
		t.Fatal("broken chain not repaired")
	}

	entries, _ = store.EntriesFor(ctx, p.ID)
	if err := ledger.VerifyChain(entries); err != nil {
		t.Errorf("chain still broken after repair: %v", err)
	}
}

func TestRepairNoopOnConsistentState(t *testing.T) {
	store, service, projector, p := setup(t)
	ctx := context.Background()

	apply(t, service, p, 10, testNow, "k1")

	snap, err := projector.Repair(ctx, p.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if snap.Drift || snap.Repaired {
		t.Errorf("consistent state flagged: %+v", snap)
	}

	// No spurious audit record either.
	records, _ := store.ListForProduct(ctx, p.ID, 10)
	for _, r := range records {
		if r.Operation == txlog.OperationDriftRepair {
			t.Error("noop repair left an audit record")
		}
	}
}
