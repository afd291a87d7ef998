package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/product"
	"stockledger/internal/domain/projection"
	"stockledger/internal/domain/txlog"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ProductHandler handles catalog and stock inspection requests.
type ProductHandler struct {
	*BaseHandler
	products  product.Repository
	projector *projection.Projector
	logs      txlog.Repository
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, products product.Repository, projector *projection.Projector, logs txlog.Repository) *ProductHandler {
	return &ProductHandler{
		BaseHandler: base,
		products:    products,
		projector:   projector,
		logs:        logs,
	}
}

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := product.New(req.Name)
	if err := h.products.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, p.ID)
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	p, err := h.products.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduct(p))
}

// Stock handles GET /products/:id/stock
//
// Re-derives current stock from the ledger and compares against the
// stored figure. With ?repair=true a detected drift is fixed under the
// product lock before responding.
func (h *ProductHandler) Stock(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		snap *projection.Snapshot
		err  error
	)
	if c.Query("repair") == "true" {
		snap, err = h.projector.Repair(ctx, productID)
	} else {
		snap, err = h.projector.Project(ctx, productID)
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSnapshot(snap))
}

// Transactions handles GET /products/:id/transactions
//
// Returns the mutation audit trail, newest first.
func (h *ProductHandler) Transactions(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Product must exist so an unknown id is a 404, not an empty list.
	if _, err := h.products.GetByID(ctx, productID); err != nil {
		h.Error(c, err)
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	records, err := h.logs.ListForProduct(ctx, productID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := dto.FromTransactions(records)
	h.OK(c, dto.ListResponse{Items: items, Count: len(items)})
}
