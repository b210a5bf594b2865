package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/winbid/internal/domain/bids"
	pkgdb "github.com/floroz/winbid/pkg/database"
)

const bidColumns = `b.id, b.product_id, b.user_id, b.amount, b.placed_at, b.is_winning`

// PostgresBidRepository implements bids.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid saves a bid using the provided transaction
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (id, product_id, user_id, amount, placed_at, is_winning)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ProductID,
		bid.UserID,
		bid.Amount,
		bid.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func (r *PostgresBidRepository) GetBidByIDTx(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*bids.Bid, error) {
	return r.getBidByID(ctx, tx, bidID)
}

func (r *PostgresBidRepository) GetBidByID(ctx context.Context, bidID uuid.UUID) (*bids.Bid, error) {
	return r.getBidByID(ctx, r.pool, bidID)
}

func (r *PostgresBidRepository) getBidByID(ctx context.Context, db pkgdb.DBTX, bidID uuid.UUID) (*bids.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids b WHERE b.id = $1`

	var bid bids.Bid
	err := db.QueryRow(ctx, query, bidID).Scan(
		&bid.ID,
		&bid.ProductID,
		&bid.UserID,
		&bid.Amount,
		&bid.PlacedAt,
		&bid.IsWinning,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bids.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}

// ListBidsByProductTx returns every bid of the product in placement order
func (r *PostgresBidRepository) ListBidsByProductTx(ctx context.Context, tx pgx.Tx, productID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids b
		WHERE b.product_id = $1
		ORDER BY b.placed_at ASC, b.id
	`
	rows, err := tx.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		var bid bids.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.ProductID,
			&bid.UserID,
			&bid.Amount,
			&bid.PlacedAt,
			&bid.IsWinning,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

func (r *PostgresBidRepository) MarkWinning(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (bool, error) {
	result, err := tx.Exec(ctx, `UPDATE bids SET is_winning = TRUE WHERE id = $1 AND is_winning = FALSE`, bidID)
	if err != nil {
		return false, fmt.Errorf("failed to mark winning bid: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// GetBidsByProductID retrieves all bids for a product, highest first, with the bidder attached
func (r *PostgresBidRepository) GetBidsByProductID(ctx context.Context, productID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `, u.username, u.email
		FROM bids b
		JOIN users u ON u.id = b.user_id
		WHERE b.product_id = $1
		ORDER BY b.amount DESC, b.placed_at ASC
	`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	result := make([]*bids.Bid, 0)
	for rows.Next() {
		bid := bids.Bid{User: &bids.BidderRef{}}
		if err := rows.Scan(
			&bid.ID,
			&bid.ProductID,
			&bid.UserID,
			&bid.Amount,
			&bid.PlacedAt,
			&bid.IsWinning,
			&bid.User.Username,
			&bid.User.Email,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

// GetBidsByUserID retrieves a user's bids, newest first, with the product attached
func (r *PostgresBidRepository) GetBidsByUserID(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `, p.name, p.image_url
		FROM bids b
		JOIN products p ON p.id = b.product_id
		WHERE b.user_id = $1
		ORDER BY b.placed_at DESC, b.id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	result := make([]*bids.Bid, 0)
	for rows.Next() {
		bid := bids.Bid{Product: &bids.ProductRef{}}
		if err := rows.Scan(
			&bid.ID,
			&bid.ProductID,
			&bid.UserID,
			&bid.Amount,
			&bid.PlacedAt,
			&bid.IsWinning,
			&bid.Product.Name,
			&bid.Product.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

func (r *PostgresBidRepository) GetHighestBid(ctx context.Context, productID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids b
		WHERE b.product_id = $1
		ORDER BY b.amount DESC, b.placed_at ASC
		LIMIT 1
	`
	bid, err := r.scanOne(ctx, query, productID)
	if errors.Is(err, bids.ErrBidNotFound) {
		return nil, nil
	}
	return bid, err
}

func (r *PostgresBidRepository) scanOne(ctx context.Context, query string, args ...any) (*bids.Bid, error) {
	var bid bids.Bid
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&bid.ID,
		&bid.ProductID,
		&bid.UserID,
		&bid.Amount,
		&bid.PlacedAt,
		&bid.IsWinning,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bids.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}

// DeleteBid removes a bid unless it won. The product counter is left as is.
func (r *PostgresBidRepository) DeleteBid(ctx context.Context, bidID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM bids WHERE id = $1 AND is_winning = FALSE`, bidID)
	if err != nil {
		return fmt.Errorf("failed to delete bid: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.getBidByID(ctx, r.pool, bidID); err != nil {
		return err
	}
	return bids.ErrBidLocked
}
