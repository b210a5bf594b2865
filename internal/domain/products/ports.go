package products

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for product persistence
type Repository interface {
	CreateProduct(ctx context.Context, product *Product) error

	// GetProductByID returns ErrProductNotFound when no row matches
	GetProductByID(ctx context.Context, productID uuid.UUID) (*Product, error)

	// UpdateProduct writes the editable fields. It must not touch the bid
	// counter or the closing state, which belong to settlement.
	UpdateProduct(ctx context.Context, product *Product) error

	DeleteProduct(ctx context.Context, productID uuid.UUID) error

	ListProducts(ctx context.Context, openOnly bool, limit, offset int) ([]*Product, error)
}
