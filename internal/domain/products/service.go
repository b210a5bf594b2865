package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrInvalidProduct  = errors.New("invalid product")
	ErrProductNotFound = errors.New("product not found")
	ErrForbidden       = errors.New("forbidden: only the owner or an admin can perform this action")
	ErrProductClosed   = errors.New("product bidding is closed")
	ErrCannotDelete    = errors.New("cannot delete product: bids have already been placed")
	ErrTargetLocked    = errors.New("total bids cannot change once bidding has started")
	// ErrProductChanged is returned by the repository when a conditional update matched no row
	ErrProductChanged = errors.New("product changed concurrently")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// CreateProductCommand represents the command to create a new product
type CreateProductCommand struct {
	Name            string
	Description     string
	ImageURL        string
	TotalBidsTarget int
	UnitBidPrice    decimal.Decimal
	OwnerID         uuid.UUID
}

// UpdateProductCommand carries the editable fields. Nil pointers are left unchanged.
type UpdateProductCommand struct {
	ProductID       uuid.UUID
	RequesterID     uuid.UUID
	RequesterAdmin  bool
	Name            *string
	Description     *string
	ImageURL        *string
	UnitBidPrice    *decimal.Decimal
	TotalBidsTarget *int
}

// ListProductsQuery represents pagination parameters for listing products
type ListProductsQuery struct {
	Limit    int
	Offset   int
	OpenOnly bool
}

// Service implements product listing management
type Service struct {
	repo Repository
}

// NewService creates a new product service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validateProduct(name string, target int, price decimal.Decimal) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 200 {
		return fmt.Errorf("%w: name must be between 1 and 200 characters", ErrInvalidProduct)
	}
	if target < 1 {
		return fmt.Errorf("%w: total bids must be at least 1", ErrInvalidProduct)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: bid price must be greater than 0", ErrInvalidProduct)
	}
	return nil
}

// CreateProduct creates a new open listing
func (s *Service) CreateProduct(ctx context.Context, cmd CreateProductCommand) (*Product, error) {
	if err := validateProduct(cmd.Name, cmd.TotalBidsTarget, cmd.UnitBidPrice); err != nil {
		return nil, err
	}
	if cmd.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidProduct)
	}

	now := time.Now()
	product := &Product{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(cmd.Name),
		Description:     cmd.Description,
		ImageURL:        cmd.ImageURL,
		TotalBidsTarget: cmd.TotalBidsTarget,
		UnitBidPrice:    cmd.UnitBidPrice,
		OwnerID:         cmd.OwnerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// GetProduct retrieves a product by ID
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*Product, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// ListProducts retrieves products newest first
func (s *Service) ListProducts(ctx context.Context, query ListProductsQuery) ([]*Product, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	products, err := s.repo.ListProducts(ctx, query.OpenOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// UpdateProduct updates a product's editable fields
func (s *Service) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (*Product, error) {
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}

	if !cmd.RequesterAdmin && !product.IsOwnedBy(cmd.RequesterID) {
		return nil, ErrForbidden
	}
	if product.IsClosed {
		return nil, ErrProductClosed
	}

	if cmd.Name != nil {
		product.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Description != nil {
		product.Description = *cmd.Description
	}
	if cmd.ImageURL != nil {
		product.ImageURL = *cmd.ImageURL
	}
	if cmd.UnitBidPrice != nil {
		product.UnitBidPrice = *cmd.UnitBidPrice
	}
	if cmd.TotalBidsTarget != nil && *cmd.TotalBidsTarget != product.TotalBidsTarget {
		if product.CurrentBidCount > 0 {
			return nil, ErrTargetLocked
		}
		product.TotalBidsTarget = *cmd.TotalBidsTarget
	}

	if err := validateProduct(product.Name, product.TotalBidsTarget, product.UnitBidPrice); err != nil {
		return nil, err
	}

	product.UpdatedAt = time.Now()
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, ErrProductChanged) {
			// a bid landed between the read and the write
			return nil, ErrTargetLocked
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// DeleteProduct removes a listing that has not received any bids
func (s *Service) DeleteProduct(ctx context.Context, productID, requesterID uuid.UUID, requesterAdmin bool) error {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	if !requesterAdmin && !product.IsOwnedBy(requesterID) {
		return ErrForbidden
	}
	if !product.CanBeDeleted() {
		return ErrCannotDelete
	}

	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, ErrProductChanged) {
			return ErrCannotDelete
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}
