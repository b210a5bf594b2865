package winners

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read side of the winners table.
// Rows are only ever inserted by auction settlement.
type Repository interface {
	ListWinners(ctx context.Context, limit, offset int) ([]*Winner, error)

	// GetWinnerByID returns ErrWinnerNotFound when no row matches
	GetWinnerByID(ctx context.Context, id uuid.UUID) (*Winner, error)

	ListWinnersByUser(ctx context.Context, userID uuid.UUID) ([]*Winner, error)

	// GetWinnerByProduct returns ErrWinnerNotFound while the auction is open
	GetWinnerByProduct(ctx context.Context, productID uuid.UUID) (*Winner, error)
}
