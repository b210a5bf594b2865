package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresWishlistRepository implements bids.WishlistRepository
type PostgresWishlistRepository struct{}

func NewPostgresWishlistRepository() *PostgresWishlistRepository {
	return &PostgresWishlistRepository{}
}

func (r *PostgresWishlistRepository) RemoveFromWishlist(ctx context.Context, tx pgx.Tx, userID, productID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `DELETE FROM wishlist_entries WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to remove wishlist entry: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
