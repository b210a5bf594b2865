package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/winbid/internal/domain/contact"
)

// PostgresContactRepository implements contact.Repository
type PostgresContactRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresContactRepository(pool *pgxpool.Pool) *PostgresContactRepository {
	return &PostgresContactRepository{pool: pool}
}

func (r *PostgresContactRepository) CreateMessage(ctx context.Context, msg *contact.Message) error {
	query := `
		INSERT INTO contact_messages (id, first_name, last_name, email, subject, message, status, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::contact_status, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.FirstName,
		msg.LastName,
		msg.Email,
		msg.Subject,
		msg.Message,
		string(msg.Status),
		msg.UserID,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact message: %w", err)
	}
	return nil
}

func (r *PostgresContactRepository) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contact_messages WHERE email = $1 AND created_at >= $2`,
		email, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count contact messages: %w", err)
	}
	return count, nil
}
