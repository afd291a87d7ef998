package dto

import (
	"time"

	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/txlog"
)

// StockSnapshotResponse reports stored vs ledger-derived stock.
type StockSnapshotResponse struct {
	ProductID    string    `json:"productId"`
	StoredStock  int64     `json:"storedStock"`
	DerivedStock int64     `json:"derivedStock"`
	Drift        bool      `json:"drift"`
	EntryCount   int       `json:"entryCount"`
	CheckedAt    time.Time `json:"checkedAt"`
	Repaired     bool      `json:"repaired,omitempty"`
}

// FromSnapshot creates StockSnapshotResponse from projection.Snapshot.
func FromSnapshot(s *projection.Snapshot) StockSnapshotResponse {
	return StockSnapshotResponse{
		ProductID:    s.ProductID.String(),
		StoredStock:  s.StoredStock,
		DerivedStock: s.DerivedStock,
		Drift:        s.Drift,
		EntryCount:   s.EntryCount,
		CheckedAt:    s.CheckedAt,
		Repaired:     s.Repaired,
	}
}

// TransactionResponse is one audit record of a mutation attempt.
type TransactionResponse struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"productId"`
	EntryID       *string    `json:"entryId,omitempty"`
	Operation     string     `json:"operation"`
	PreviousStock int64      `json:"previousStock"`
	NewStock      int64      `json:"newStock"`
	QuantityDelta int64      `json:"quantityDelta"`
	StartedAt     time.Time  `json:"startedAt"`
	LockedAt      *time.Time `json:"lockedAt,omitempty"`
	FinishedAt    time.Time  `json:"finishedAt"`
	LockHoldMs    int64      `json:"lockHoldMs"`
	Outcome       string     `json:"outcome"`
	ErrorDetail   string     `json:"errorDetail,omitempty"`
}

// FromTransaction creates TransactionResponse from txlog.Record.
func FromTransaction(r *txlog.Record) TransactionResponse {
	resp := TransactionResponse{
		ID:            r.ID.String(),
		ProductID:     r.ProductID.String(),
		Operation:     string(r.Operation),
		PreviousStock: r.PreviousStock,
		NewStock:      r.NewStock,
		QuantityDelta: r.QuantityDelta,
		StartedAt:     r.StartedAt,
		LockedAt:      r.LockedAt,
		FinishedAt:    r.FinishedAt,
		LockHoldMs:    r.LockHoldDuration().Milliseconds(),
		Outcome:       string(r.Outcome),
		ErrorDetail:   r.ErrorDetail,
	}
	if r.EntryID != nil {
		s := r.EntryID.String()
		resp.EntryID = &s
	}
	return resp
}

// FromTransactions converts a record slice.
func FromTransactions(records []txlog.Record) []TransactionResponse {
	out := make([]TransactionResponse, len(records))
	for i := range records {
		out[i] = FromTransaction(&records[i])
	}
	return out
}
