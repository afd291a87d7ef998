// Package memory provides an embedded, in-process implementation of the
// ledger's storage interfaces, used for tests and local development.
//
// The product row lock is a per-product mutex with non-blocking
// acquisition, matching the fail-fast semantics of the PostgreSQL
// FOR UPDATE NOWAIT path. Locks are scoped to the surrounding
// RunInTransaction call and released when it returns.
//
// Writes made inside a transaction are staged and published in one
// critical section when the transaction commits, so a concurrent reader
// sees either none of the transaction's writes or all of them. A failed
// transaction simply drops its staged writes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/txlog"
)

// entryKey scopes idempotency keys to a product: the same key used for
// another product is a distinct purchase.
type entryKey struct {
	productID id.ID
	key       string
}

// Store implements product.Repository, ledger.Repository,
// txlog.Repository and tx.Manager in memory.
type Store struct {
	mu       sync.RWMutex
	products map[id.ID]product.Product
	entries  map[id.ID][]ledger.Entry // per product, chronological
	byKey    map[entryKey]id.ID       // (product, idempotency key) -> entry id
	entryOwn map[id.ID]id.ID          // entry id -> product id
	logs     map[id.ID][]txlog.Record

	locks sync.Map // product id -> *sync.Mutex
}

// Compile-time interface checks.
var (
	_ product.Repository = (*Store)(nil)
	_ ledger.Repository  = (*Store)(nil)
	_ txlog.Repository   = (*Store)(nil)
	_ tx.ReadOnlyManager = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		products: make(map[id.ID]product.Product),
		entries:  make(map[id.ID][]ledger.Entry),
		byKey:    make(map[entryKey]id.ID),
		entryOwn: make(map[id.ID]id.ID),
		logs:     make(map[id.ID][]txlog.Record),
	}
}

// --- tx.Manager ---

// txState carries one logical transaction: the locks to release when it
// ends and the writes staged for publication at commit. Staging doubles
// as rollback, a failed transaction never touches the maps.
type txState struct {
	mu      sync.Mutex
	staged  []func()
	release []func()
}

type txStateKey struct{}

func txStateFrom(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txStateKey{}).(*txState)
	return state, ok
}

func (s *txState) register(unlock func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release = append(s.release, unlock)
}

func (s *txState) stage(apply func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = append(s.staged, apply)
}

func (s *txState) drain() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.staged
	s.staged = nil
	return staged
}

func (s *txState) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.release) - 1; i >= 0; i-- {
		s.release[i]()
	}
	s.release = nil
}

// RunInTransaction executes fn with lock-release scoping. Nested calls
// reuse the outer scope. On success every staged write is published in
// a single critical section, before the locks release; on error the
// staged writes are discarded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txStateFrom(ctx); ok {
		return fn(ctx)
	}

	state := &txState{}
	defer state.releaseAll()

	if err := fn(context.WithValue(ctx, txStateKey{}, state)); err != nil {
		return err
	}

	s.mu.Lock()
	for _, apply := range state.drain() {
		apply()
	}
	s.mu.Unlock()
	return nil
}

// ReadOnly executes fn with the same scoping. The embedded store does
// not enforce read-only access.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// write applies a mutation immediately when called outside a
// transaction and stages it for atomic publication at commit otherwise.
// Callers hold s.mu; staged closures run under s.mu again at commit.
func (s *Store) write(ctx context.Context, apply func()) {
	if state, ok := txStateFrom(ctx); ok {
		state.stage(apply)
		return
	}
	apply()
}

// --- product.Repository ---

func (s *Store) Create(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[p.ID]; exists {
		return apperror.NewDuplicate("product", "id", p.ID.String())
	}
	created := *p
	s.write(ctx, func() {
		s.products[created.ID] = created
	})
	return nil
}

func (s *Store) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return &p, nil
}

// GetForUpdate acquires the product's mutex without blocking. The lock
// is registered with the surrounding transaction scope and released
// when it ends.
func (s *Store) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	state, ok := txStateFrom(ctx)
	if !ok {
		return nil, apperror.NewInternal(fmt.Errorf("GetForUpdate called outside a transaction"))
	}

	s.mu.RLock()
	_, exists := s.products[productID]
	s.mu.RUnlock()
	if !exists {
		return nil, apperror.NewNotFound("product", productID.String())
	}

	lockAny, _ := s.locks.LoadOrStore(productID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	if !lock.TryLock() {
		return nil, apperror.NewContention(productID.String())
	}
	state.register(lock.Unlock)

	// Re-read under the lock: the value may have changed while the
	// caller was waiting on a retry loop.
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.products[productID]
	return &p, nil
}

func (s *Store) UpdateStock(ctx context.Context, productID id.ID, stock int64, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return apperror.NewNotFound("product", productID.String())
	}
	s.write(ctx, func() {
		p := s.products[productID]
		p.CurrentStock = stock
		p.LastSyncedAt = &syncedAt
		s.products[productID] = p
	})
	return nil
}

func (s *Store) ListIDs(_ context.Context) ([]id.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]id.ID, 0, len(s.products))
	for pid := range s.products {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// --- ledger.Repository ---

// Append validates against committed state; writers to one product are
// serialized by the product lock, so a staged entry cannot race its
// uniqueness checks.
func (s *Store) Append(ctx context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[e.ProductID]; !exists {
		return apperror.NewNotFound("product", e.ProductID.String())
	}
	if _, exists := s.byKey[entryKey{e.ProductID, e.IdempotencyKey}]; exists {
		return apperror.NewDuplicate("ledger entry", "idempotency_key", e.IdempotencyKey)
	}
	if _, exists := s.entryOwn[e.ID]; exists {
		return apperror.NewStorage(fmt.Errorf("duplicate entry id %s", e.ID))
	}

	entry := *e
	s.write(ctx, func() {
		entries, _ := ledger.InsertChronological(s.entries[entry.ProductID], entry)
		s.entries[entry.ProductID] = entries
		s.byKey[entryKey{entry.ProductID, entry.IdempotencyKey}] = entry.ID
		s.entryOwn[entry.ID] = entry.ProductID
	})
	return nil
}

func (s *Store) EntriesFor(_ context.Context, productID id.ID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.entries[productID]
	out := make([]ledger.Entry, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) UpdateStockAfter(ctx context.Context, entryID id.ID, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	productID, ok := s.entryOwn[entryID]
	if !ok {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}
	s.write(ctx, func() {
		entries := s.entries[productID]
		for i := range entries {
			if entries[i].ID == entryID {
				entries[i].StockAfter = value
				return
			}
		}
	})
	return nil
}

func (s *Store) GetByIdempotencyKey(_ context.Context, productID id.ID, key string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entryID, ok := s.byKey[entryKey{productID, key}]
	if !ok {
		return nil, nil
	}
	for _, e := range s.entries[productID] {
		if e.ID == entryID {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

// --- txlog.Repository ---

func (s *Store) Record(ctx context.Context, rec *txlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rec
	s.write(ctx, func() {
		s.logs[r.ProductID] = append(s.logs[r.ProductID], r)
	})
	return nil
}

func (s *Store) ListForProduct(_ context.Context, productID id.ID, limit int) ([]txlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.logs[productID]
	out := make([]txlog.Record, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
