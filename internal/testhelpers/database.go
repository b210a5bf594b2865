package testhelpers

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// CleanDatabase truncates all tables to reset state between tests
// Useful when reusing a database across multiple tests
func CleanDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	queries := []string{
		"TRUNCATE TABLE winners CASCADE",
		"TRUNCATE TABLE bids CASCADE",
		"TRUNCATE TABLE wishlist_entries CASCADE",
		"TRUNCATE TABLE products CASCADE",
		"TRUNCATE TABLE contact_messages CASCADE",
		"TRUNCATE TABLE outbox_events CASCADE",
		"TRUNCATE TABLE processed_events CASCADE",
		"TRUNCATE TABLE user_stats CASCADE",
		"TRUNCATE TABLE users CASCADE",
	}

	for _, query := range queries {
		_, err := pool.Exec(ctx, query)
		require.NoError(t, err, "Failed to truncate table: %s", query)
	}
}

// SeedUser inserts a verified user with a throwaway password hash and returns its ID
func SeedUser(t *testing.T, pool *pgxpool.Pool, username string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, is_email_verified)
		VALUES ($1, $2, $3, 'x', 'Test', 'User', true)
	`, id, username, fmt.Sprintf("%s@example.com", username))
	require.NoError(t, err, "Failed to seed user")
	return id
}

// SeedProduct inserts an open product owned by ownerID and returns its ID
func SeedProduct(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID, name string, target int, price decimal.Decimal) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO products (id, name, total_bids_target, unit_bid_price, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`, id, name, target, price, ownerID)
	require.NoError(t, err, "Failed to seed product")
	return id
}

// SeedWishlist adds productID to userID's wishlist
func SeedWishlist(t *testing.T, pool *pgxpool.Pool, userID, productID uuid.UUID) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO wishlist_entries (id, user_id, product_id) VALUES ($1, $2, $3)
	`, uuid.New(), userID, productID)
	require.NoError(t, err, "Failed to seed wishlist entry")
}
