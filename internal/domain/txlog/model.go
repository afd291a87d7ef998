// Package txlog provides the append-only audit log of stock mutation
// attempts, with timing fields for diagnosing contention.
package txlog

import (
	"time"

	"stockledger/internal/core/id"
)

// Operation identifies the kind of mutation attempted.
type Operation string

const (
	OperationPurchase    Operation = "purchase_addition"
	OperationDriftRepair Operation = "drift_repair"
)

// Outcome classifies how a mutation attempt ended.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeContention        Outcome = "contention"
	OutcomeValidationFailure Outcome = "validation_failure"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeStorageFailure    Outcome = "storage_failure"
)

// Record is one mutation attempt, success or failure. Created once,
// immutable thereafter; never mutated or deleted in normal operation.
//
// A failed attempt has no persisted ledger entry, so EntryID is nil.
type Record struct {
	ID        id.ID     `db:"id" json:"id"`
	ProductID id.ID     `db:"product_id" json:"productId"`
	EntryID   *id.ID    `db:"entry_id" json:"entryId,omitempty"`
	Operation Operation `db:"operation" json:"operation"`

	PreviousStock int64 `db:"previous_stock" json:"previousStock"`
	NewStock      int64 `db:"new_stock" json:"newStock"`
	QuantityDelta int64 `db:"quantity_delta" json:"quantityDelta"`

	// StartedAt is when the attempt began; LockedAt when the row lock
	// was granted (nil if it never was); FinishedAt when the attempt
	// ended either way.
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	LockedAt   *time.Time `db:"locked_at" json:"lockedAt,omitempty"`
	FinishedAt time.Time  `db:"finished_at" json:"finishedAt"`

	Outcome     Outcome `db:"outcome" json:"outcome"`
	ErrorDetail string  `db:"error_detail" json:"errorDetail,omitempty"`
}

// LockHoldDuration returns how long the product row lock was held, or
// zero when it was never acquired. Staleness seen by concurrent readers
// is bounded by this value.
func (r *Record) LockHoldDuration() time.Duration {
	if r.LockedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.LockedAt)
}
