package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/winbid/internal/domain/users"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// unique constraint name -> request field
var userUniqueFields = map[string]string{
	"users_email_key":    "email",
	"users_username_key": "username",
}

const userColumns = `id, username, email, password_hash, password_scheme, first_name, last_name,
	COALESCE(phone_number, ''), role, is_email_verified, email_verified_at, created_at, updated_at`

// PostgresUserRepository implements users.Repository
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func (r *PostgresUserRepository) CreateUser(ctx context.Context, tx pgx.Tx, user *users.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, password_scheme, first_name, last_name,
			phone_number, role, is_email_verified, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::password_scheme, $6, $7, NULLIF($8, ''), $9::user_role, $10, $11, $12, $13)
	`
	_, err := tx.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Password.Value,
		string(user.Password.Scheme),
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.Role,
		user.IsEmailVerified,
		user.EmailVerifiedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateEntry(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// duplicateEntry maps a unique violation on users to the field that collided
func duplicateEntry(err error) *users.DuplicateEntryError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	field, ok := userUniqueFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return &users.DuplicateEntryError{Fields: []string{field}}
}

func scanUser(row pgx.Row) (*users.User, error) {
	var (
		user   users.User
		scheme string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password.Value,
		&scheme,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Role,
		&user.IsEmailVerified,
		&user.EmailVerifiedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Password.Scheme = users.PasswordScheme(scheme)
	return &user, nil
}

func (r *PostgresUserRepository) getUser(ctx context.Context, where string, arg any) (*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Return nil if not found, let service handle it
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return r.getUser(ctx, "id = $1", id)
}

func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getUser(ctx, "email = LOWER($1)", email)
}

func (r *PostgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*users.User, error) {
	return r.getUser(ctx, "username = $1", username)
}

// UpdatePassword stores a new password, used when a legacy account is rehashed
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, password users.Password) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_scheme = $3::password_scheme, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, password.Value, string(password.Scheme))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) ListUsers(ctx context.Context, limit, offset int) ([]*users.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	list := make([]*users.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		list = append(list, user)
	}
	return list, rows.Err()
}

// UpdateProfile leaves nil fields untouched; an empty phone number is stored as NULL
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update users.ProfileUpdate) (*users.User, error) {
	query := `
		UPDATE users
		SET first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			phone_number = CASE WHEN $4::text IS NULL THEN phone_number ELSE NULLIF($4, '') END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, update.FirstName, update.LastName, update.PhoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes an account. Wishlist rows cascade and contact messages are
// detached, but bids, products and wins keep the row alive.
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return users.ErrUserInUse
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}
