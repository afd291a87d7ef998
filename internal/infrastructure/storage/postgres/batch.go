package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchWriter sends a group of statements to the server in a single
// round trip, inside the transaction bound to the context. The ledger
// recalculator uses it to rewrite every shifted stock_after snapshot
// without paying one network hop per entry.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a new batch writer.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// Run queues statements via build and executes them all. Requires a
// transaction on the context: batched writes outside the mutation
// transaction would break atomicity.
func (w *BatchWriter) Run(ctx context.Context, build func(b *pgx.Batch)) error {
	tx := w.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch requires transaction context")
	}

	batch := &pgx.Batch{}
	build(batch)
	if batch.Len() == 0 {
		return nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}
