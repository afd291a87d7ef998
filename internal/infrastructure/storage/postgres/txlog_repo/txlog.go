// Package txlog_repo provides the PostgreSQL transaction log store.
package txlog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/txlog"
	"stockledger/internal/infrastructure/storage/postgres"
)

const logTable = "stock_transaction_log"

// Repo implements txlog.Repository on PostgreSQL.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates the transaction log repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends one attempt record. The table is append-only: there is
// no update or delete path in this package.
func (r *Repo) Record(ctx context.Context, rec *txlog.Record) error {
	q := r.builder.Insert(logTable).
		Columns(
			"id", "product_id", "entry_id", "operation",
			"previous_stock", "new_stock", "quantity_delta",
			"started_at", "locked_at", "finished_at",
			"outcome", "error_detail",
		).
		Values(
			rec.ID, rec.ProductID, rec.EntryID, rec.Operation,
			rec.PreviousStock, rec.NewStock, rec.QuantityDelta,
			rec.StartedAt, rec.LockedAt, rec.FinishedAt,
			rec.Outcome, rec.ErrorDetail,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return apperror.NewStorage(fmt.Errorf("record attempt: %w", err))
	}

	return nil
}

// ListForProduct returns the newest records first.
func (r *Repo) ListForProduct(ctx context.Context, productID id.ID, limit int) ([]txlog.Record, error) {
	q := r.builder.Select(
		"id", "product_id", "entry_id", "operation",
		"previous_stock", "new_stock", "quantity_delta",
		"started_at", "locked_at", "finished_at",
		"outcome", "error_detail",
	).From(logTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("started_at DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []txlog.Record
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, apperror.NewStorage(fmt.Errorf("select records: %w", err))
	}

	return records, nil
}

// Ensure interface compliance.
var _ txlog.Repository = (*Repo)(nil)
