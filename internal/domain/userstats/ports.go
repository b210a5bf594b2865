package userstats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/floroz/winbid/internal/domain/users"
)

type Repository interface {
	// IncrementBidStats upserts the user's row, adding one bid of amount
	IncrementBidStats(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal, lastBidAt time.Time) error

	// IncrementAuctionsWon upserts the user's row, adding one win
	IncrementAuctionsWon(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error

	// GetUserStats returns ErrStatsNotFound when the user never bid
	GetUserStats(ctx context.Context, userID uuid.UUID) (*UserStats, error)

	// MarkEventProcessed marks an event as processed to prevent duplicates
	MarkEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error

	// IsEventProcessed checks if an event has already been processed
	IsEventProcessed(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (bool, error)
}

// UserLookup resolves the winner's contact details
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}
