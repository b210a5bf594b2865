package userstats

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserStats is a per-bidder read model built from auction events
type UserStats struct {
	UserID          uuid.UUID       `json:"userId"`
	TotalBidsPlaced int64           `json:"totalBidsPlaced"`
	TotalAmountBid  decimal.Decimal `json:"totalAmountBid"`
	AuctionsWon     int64           `json:"auctionsWon"`
	LastBidAt       *time.Time      `json:"lastBidAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// BidPlacedEvent is the domain view of a bid.placed message
type BidPlacedEvent struct {
	EventID   uuid.UUID
	BidID     uuid.UUID
	ProductID uuid.UUID
	UserID    uuid.UUID
	Amount    decimal.Decimal
	PlacedAt  time.Time
}

// AuctionSettledEvent is the domain view of an auction.settled message
type AuctionSettledEvent struct {
	EventID   uuid.UUID
	ProductID uuid.UUID
	WinnerID  uuid.UUID
	UserID    uuid.UUID
	BidID     uuid.UUID
	Amount    decimal.Decimal
	WonAt     time.Time
}
