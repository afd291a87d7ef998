// Package ledger_repo provides the PostgreSQL ledger store.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const entriesTable = "ledger_entries"

// Repo implements ledger.Repository on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates the ledger repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one entry. Duplicate idempotency keys map to a
// duplicate error; an unknown product surfaces as not found via the
// foreign key.
func (r *Repo) Append(ctx context.Context, e *ledger.Entry) error {
	q := r.builder.Insert(entriesTable).
		Columns(
			"id", "product_id", "effective_date", "created_at",
			"quantity_delta", "stock_after", "idempotency_key",
			"unit_cost", "total_cost", "vendor",
		).
		Values(
			e.ID, e.ProductID, e.EffectiveDate, e.CreatedAt,
			e.QuantityDelta, e.StockAfter, e.IdempotencyKey,
			e.UnitCost, e.TotalCost, e.Vendor,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return mapAppendError(e, err)
	}

	return nil
}

func mapAppendError(e *ledger.Entry, err error) error {
	switch {
	case postgres.IsUniqueViolation(err):
		return apperror.NewDuplicate("ledger entry", "idempotency_key", e.IdempotencyKey).WithCause(err)
	case postgres.IsForeignKeyViolation(err):
		return apperror.NewNotFound("product", e.ProductID.String()).WithCause(err)
	default:
		return apperror.NewStorage(fmt.Errorf("append entry: %w", err))
	}
}

// EntriesFor returns the product's full ledger in chronological order.
func (r *Repo) EntriesFor(ctx context.Context, productID id.ID) ([]ledger.Entry, error) {
	q := r.builder.Select(
		"id", "product_id", "effective_date", "created_at",
		"quantity_delta", "stock_after", "idempotency_key",
		"unit_cost", "total_cost", "vendor",
	).From(entriesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("effective_date", "created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []ledger.Entry
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &entries, sql, args...); err != nil {
		return nil, apperror.NewStorage(fmt.Errorf("select entries: %w", err))
	}

	return entries, nil
}

// UpdateStockAfter rewrites the snapshot field of a single entry.
func (r *Repo) UpdateStockAfter(ctx context.Context, entryID id.ID, value int64) error {
	q := r.builder.Update(entriesTable).
		Set("stock_after", value).
		Where(squirrel.Eq{"id": entryID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewStorage(fmt.Errorf("update stock_after: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("ledger entry", entryID.String())
	}

	return nil
}

// ApplyAdjustments rewrites all shifted snapshots in one server round
// trip. Only ever called inside the mutation transaction, where the
// entries were just read under the product lock.
func (r *Repo) ApplyAdjustments(ctx context.Context, adjustments []ledger.Adjustment) error {
	writer := postgres.NewBatchWriter(r.txm)
	err := writer.Run(ctx, func(b *pgx.Batch) {
		for _, adj := range adjustments {
			b.Queue(
				"UPDATE "+entriesTable+" SET stock_after = $1 WHERE id = $2",
				adj.StockAfter, adj.EntryID,
			)
		}
	})
	if err != nil {
		return apperror.NewStorage(fmt.Errorf("apply adjustments: %w", err))
	}
	return nil
}

// GetByIdempotencyKey returns the product's entry stored under key, or
// nil. The key is scoped to the product.
func (r *Repo) GetByIdempotencyKey(ctx context.Context, productID id.ID, key string) (*ledger.Entry, error) {
	q := r.builder.Select(
		"id", "product_id", "effective_date", "created_at",
		"quantity_delta", "stock_after", "idempotency_key",
		"unit_cost", "total_cost", "vendor",
	).From(entriesTable).
		Where(squirrel.Eq{"product_id": productID, "idempotency_key": key}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entry ledger.Entry
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &entry, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, apperror.NewStorage(fmt.Errorf("get by idempotency key: %w", err))
	}

	return &entry, nil
}

// Ensure interface compliance.
var (
	_ ledger.Repository        = (*Repo)(nil)
	_ ledger.AdjustmentApplier = (*Repo)(nil)
)
