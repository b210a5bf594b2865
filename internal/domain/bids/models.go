package bids

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/winners"
)

// MinBidAmount is the smallest amount a bid may carry
var MinBidAmount = decimal.RequireFromString("0.01")

// Bid is a single entry into a product's raffle. Only IsWinning ever changes after insert.
type Bid struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	ProductID uuid.UUID       `json:"productId" db:"product_id"`
	UserID    uuid.UUID       `json:"userId" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	PlacedAt  time.Time       `json:"placedAt" db:"placed_at"`
	IsWinning bool            `json:"isWinning" db:"is_winning"`

	// Populated by product-scoped queries
	User *BidderRef `json:"user,omitempty" db:"-"`
	// Populated by user-scoped queries
	Product *ProductRef `json:"product,omitempty" db:"-"`
}

type BidderRef struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ProductRef struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// SettlementResult is what PlaceBid reports back to the bidder
type SettlementResult struct {
	Bid               *Bid              `json:"bid"`
	Product           *products.Product `json:"product"`
	Winner            *winners.Winner   `json:"winner,omitempty"`
	IsBiddingComplete bool              `json:"isBiddingComplete"`
	WishlistRemoved   bool              `json:"wishlistRemoved"`
}

// Requester identifies who is asking for a mutation
type Requester struct {
	UserID  uuid.UUID
	IsAdmin bool
}
