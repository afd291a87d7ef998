// Package product_repo provides the PostgreSQL product store, including
// the non-blocking row lock the atomic mutator is built on.
package product_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/product"
	"stockledger/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

// Repo implements product.Repository on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates the product repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a product with zero initial stock.
func (r *Repo) Create(ctx context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	q := r.builder.Insert(productsTable).
		Columns("id", "name", "current_stock", "last_synced_at", "created_at").
		Values(p.ID, p.Name, p.CurrentStock, p.LastSyncedAt, p.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("product", "id", p.ID.String()).WithCause(err)
		}
		return apperror.NewStorage(fmt.Errorf("insert product: %w", err))
	}

	return nil
}

// GetByID returns the product without locking.
func (r *Repo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := r.builder.Select("id", "name", "current_stock", "last_synced_at", "created_at").
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, apperror.NewStorage(fmt.Errorf("get product: %w", err))
	}

	return &p, nil
}

// GetForUpdate returns the product under an exclusive row lock.
// NOWAIT fails fast instead of queueing; the resulting contention error
// tells the caller to retry with backoff. The lock lives until the
// surrounding transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	sql := `
		SELECT id, name, current_stock, last_synced_at, created_at
		FROM products
		WHERE id = $1
		FOR UPDATE NOWAIT
	`

	var p product.Product
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, productID); err != nil {
		switch {
		case postgres.IsLockNotAvailable(err):
			return nil, apperror.NewContention(productID.String()).WithCause(err)
		case pgxscan.NotFound(err):
			return nil, apperror.NewNotFound("product", productID.String())
		default:
			return nil, apperror.NewStorage(fmt.Errorf("lock product: %w", err))
		}
	}

	return &p, nil
}

// UpdateStock rewrites the projected stock fields.
func (r *Repo) UpdateStock(ctx context.Context, productID id.ID, stock int64, syncedAt time.Time) error {
	q := r.builder.Update(productsTable).
		Set("current_stock", stock).
		Set("last_synced_at", syncedAt).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewStorage(fmt.Errorf("update stock: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}

	return nil
}

// ListIDs returns ids of all products, oldest first.
func (r *Repo) ListIDs(ctx context.Context) ([]id.ID, error) {
	q := r.builder.Select("id").From(productsTable).OrderBy("created_at")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &ids, sql, args...); err != nil {
		return nil, apperror.NewStorage(fmt.Errorf("list products: %w", err))
	}

	return ids, nil
}

// Ensure interface compliance.
var _ product.Repository = (*Repo)(nil)
