package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/winbid/internal/domain/winners"
)

const winnerSelect = `
	SELECT w.id, w.product_id, w.user_id, w.bid_id, w.winning_amount, w.won_at,
		u.username, u.email, p.name, p.image_url
	FROM winners w
	JOIN users u ON u.id = w.user_id
	JOIN products p ON p.id = w.product_id
`

// PostgresWinnerRepository implements winners.Repository and bids.WinnerRepository
type PostgresWinnerRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresWinnerRepository(pool *pgxpool.Pool) *PostgresWinnerRepository {
	return &PostgresWinnerRepository{pool: pool}
}

// CreateWinner inserts the settlement record. UNIQUE(product_id) rejects a second winner.
func (r *PostgresWinnerRepository) CreateWinner(ctx context.Context, tx pgx.Tx, winner *winners.Winner) error {
	query := `
		INSERT INTO winners (id, product_id, user_id, bid_id, winning_amount, won_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		winner.ID,
		winner.ProductID,
		winner.UserID,
		winner.BidID,
		winner.WinningAmount,
		winner.WonAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert winner: %w", err)
	}
	return nil
}

func scanWinner(row pgx.Row) (*winners.Winner, error) {
	w := winners.Winner{User: &winners.UserRef{}, Product: &winners.ProductRef{}}
	err := row.Scan(
		&w.ID,
		&w.ProductID,
		&w.UserID,
		&w.BidID,
		&w.WinningAmount,
		&w.WonAt,
		&w.User.Username,
		&w.User.Email,
		&w.Product.Name,
		&w.Product.ImageURL,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *PostgresWinnerRepository) ListWinners(ctx context.Context, limit, offset int) ([]*winners.Winner, error) {
	return r.list(ctx, winnerSelect+` ORDER BY w.won_at DESC, w.id LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *PostgresWinnerRepository) ListWinnersByUser(ctx context.Context, userID uuid.UUID) ([]*winners.Winner, error) {
	return r.list(ctx, winnerSelect+` WHERE w.user_id = $1 ORDER BY w.won_at DESC, w.id`, userID)
}

func (r *PostgresWinnerRepository) GetWinnerByID(ctx context.Context, id uuid.UUID) (*winners.Winner, error) {
	return r.one(ctx, winnerSelect+` WHERE w.id = $1`, id)
}

func (r *PostgresWinnerRepository) GetWinnerByProduct(ctx context.Context, productID uuid.UUID) (*winners.Winner, error) {
	return r.one(ctx, winnerSelect+` WHERE w.product_id = $1`, productID)
}

func (r *PostgresWinnerRepository) one(ctx context.Context, query string, args ...any) (*winners.Winner, error) {
	w, err := scanWinner(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, winners.ErrWinnerNotFound
		}
		return nil, fmt.Errorf("failed to get winner: %w", err)
	}
	return w, nil
}

func (r *PostgresWinnerRepository) list(ctx context.Context, query string, args ...any) ([]*winners.Winner, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	result := make([]*winners.Winner, 0)
	for rows.Next() {
		w, err := scanWinner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating winners: %w", err)
	}
	return result, nil
}
