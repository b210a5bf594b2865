package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a listing that closes once it has collected TotalBidsTarget bids.
// WinnerID is set in the same write that flips IsClosed.
type Product struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description" db:"description"`
	ImageURL        string          `json:"imageUrl" db:"image_url"`
	TotalBidsTarget int             `json:"totalBids" db:"total_bids_target"`
	CurrentBidCount int             `json:"currentBidCount" db:"current_bid_count"`
	UnitBidPrice    decimal.Decimal `json:"bidPrice" db:"unit_bid_price"`
	WinnerID        *uuid.UUID      `json:"winner,omitempty" db:"winner_id"`
	IsClosed        bool            `json:"isClosed" db:"is_closed"`
	OwnerID         uuid.UUID       `json:"owner" db:"owner_id"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsOwnedBy checks if the product belongs to the given user
func (p *Product) IsOwnedBy(userID uuid.UUID) bool {
	return p.OwnerID == userID
}

// BidsRemaining is how many more bids close the auction
func (p *Product) BidsRemaining() int {
	if p.IsClosed || p.CurrentBidCount >= p.TotalBidsTarget {
		return 0
	}
	return p.TotalBidsTarget - p.CurrentBidCount
}

// ReachedTarget reports whether the bid counter satisfies the closing condition
func (p *Product) ReachedTarget() bool {
	return p.CurrentBidCount >= p.TotalBidsTarget
}

// CanBeDeleted returns true when no bid has been accepted yet
func (p *Product) CanBeDeleted() bool {
	return p.CurrentBidCount == 0 && !p.IsClosed
}
