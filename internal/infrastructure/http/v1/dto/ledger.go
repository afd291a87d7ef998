package dto

import (
	"time"

	"stockledger/internal/domain/ledger"
)

// RecordPurchaseRequest for appending a purchase to a product's ledger.
type RecordPurchaseRequest struct {
	Quantity       int64     `json:"quantity" binding:"required,gt=0"`
	EffectiveDate  time.Time `json:"effectiveDate" binding:"required"`
	IdempotencyKey string    `json:"idempotencyKey" binding:"required"`
	UnitCost       string    `json:"unitCost"`
	Vendor         string    `json:"vendor"`
}

// EntryResponse is one ledger entry with its running balance.
type EntryResponse struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	EffectiveDate time.Time `json:"effectiveDate"`
	CreatedAt     time.Time `json:"createdAt"`
	QuantityDelta int64     `json:"quantityDelta"`
	StockAfter    int64     `json:"stockAfter"`
	UnitCost      string    `json:"unitCost"`
	TotalCost     string    `json:"totalCost"`
	Vendor        string    `json:"vendor,omitempty"`
}

// FromEntry creates EntryResponse from ledger.Entry.
func FromEntry(e *ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:            e.ID.String(),
		ProductID:     e.ProductID.String(),
		EffectiveDate: e.EffectiveDate,
		CreatedAt:     e.CreatedAt,
		QuantityDelta: e.QuantityDelta,
		StockAfter:    e.StockAfter,
		UnitCost:      e.UnitCost.String(),
		TotalCost:     e.TotalCost.String(),
		Vendor:        e.Vendor,
	}
}

// FromEntries converts a ledger slice.
func FromEntries(entries []ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i := range entries {
		out[i] = FromEntry(&entries[i])
	}
	return out
}
