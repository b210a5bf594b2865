package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/winners"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// SaveBid saves a bid within a transaction
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetBidByIDTx returns ErrBidNotFound when the bid is not visible to tx
	GetBidByIDTx(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*Bid, error)

	// ListBidsByProductTx returns the raffle pool ordered by placement time
	ListBidsByProductTx(ctx context.Context, tx pgx.Tx, productID uuid.UUID) ([]*Bid, error)

	// MarkWinning flags the bid. It reports false if the bid was already flagged.
	MarkWinning(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (bool, error)

	GetBidByID(ctx context.Context, bidID uuid.UUID) (*Bid, error)

	// GetBidsByProductID orders by amount descending and populates User
	GetBidsByProductID(ctx context.Context, productID uuid.UUID) ([]*Bid, error)

	// GetBidsByUserID orders by placement time descending and populates Product
	GetBidsByUserID(ctx context.Context, userID uuid.UUID) ([]*Bid, error)

	// GetHighestBid returns nil, nil when the product has no bids
	GetHighestBid(ctx context.Context, productID uuid.UUID) (*Bid, error)

	// DeleteBid removes a non-winning bid. It returns ErrBidLocked when the bid is winning.
	DeleteBid(ctx context.Context, bidID uuid.UUID) error
}

// ProductRepository is the settlement view of the products table
type ProductRepository interface {
	// GetProductByIDForUpdate locks the product row until tx ends
	GetProductByIDForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*products.Product, error)

	// IncrementBidCount adds one to current_bid_count and returns the updated row
	IncrementBidCount(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*products.Product, error)

	// CloseProduct sets is_closed and winner_id only if the product is still open.
	// It reports whether this call performed the close.
	CloseProduct(ctx context.Context, tx pgx.Tx, productID, winnerUserID uuid.UUID) (bool, error)
}

// WinnerRepository inserts the audit record of a settlement
type WinnerRepository interface {
	CreateWinner(ctx context.Context, tx pgx.Tx, winner *winners.Winner) error
}

// WishlistRepository is the only wishlist operation the bidding flow needs
type WishlistRepository interface {
	// RemoveFromWishlist reports whether an entry existed
	RemoveFromWishlist(ctx context.Context, tx pgx.Tx, userID, productID uuid.UUID) (bool, error)
}
