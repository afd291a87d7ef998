package dto

import (
	"time"

	"stockledger/internal/domain/product"
)

// CreateProductRequest for registering a catalog product.
type CreateProductRequest struct {
	Name string `json:"name" binding:"required"`
}

// ProductResponse contains catalog and stock fields.
type ProductResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CurrentStock int64      `json:"currentStock"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// FromProduct creates ProductResponse from product.Product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:           p.ID.String(),
		Name:         p.Name,
		CurrentStock: p.CurrentStock,
		LastSyncedAt: p.LastSyncedAt,
		CreatedAt:    p.CreatedAt,
	}
}
