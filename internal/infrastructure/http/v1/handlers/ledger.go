package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles purchase recording and ledger reads.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
	retry   ledger.RetryConfig
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service, retry ledger.RetryConfig) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		service:     service,
		retry:       retry,
	}
}

// RecordPurchase handles POST /products/:id/purchases
//
// Contention from a concurrent mutation is retried here with backoff;
// only an attempt budget exhausted on a still-locked row surfaces as a
// 409 to the client.
func (h *LedgerHandler) RecordPurchase(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.RecordPurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	unitCost := types.ZeroMoney()
	if req.UnitCost != "" {
		parsed, err := types.NewMoneyFromString(req.UnitCost)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid unitCost format"))
			return
		}
		unitCost = parsed
	}

	cmd := ledger.ApplyPurchaseCommand{
		ProductID:      productID,
		Quantity:       req.Quantity,
		EffectiveDate:  req.EffectiveDate,
		IdempotencyKey: req.IdempotencyKey,
		UnitCost:       unitCost,
		Vendor:         req.Vendor,
	}

	var entry *ledger.Entry
	err := ledger.WithRetry(c.Request.Context(), h.retry, func(ctx context.Context) error {
		var applyErr error
		entry, applyErr = h.service.ApplyPurchase(ctx, cmd)
		return applyErr
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromEntry(entry))
}

// History handles GET /products/:id/ledger
//
// Returns the full entry list in chronological order, running balances
// included.
func (h *LedgerHandler) History(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.service.History(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := dto.FromEntries(entries)
	h.OK(c, dto.ListResponse{Items: items, Count: len(items)})
}
