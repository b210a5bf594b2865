package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/winbid/internal/domain/products"
	pkgdb "github.com/floroz/winbid/pkg/database"
)

const productColumns = `id, name, description, image_url, total_bids_target, current_bid_count,
	unit_bid_price, winner_id, is_closed, owner_id, created_at, updated_at`

// PostgresProductRepository implements products.Repository and bids.ProductRepository using pgx
type PostgresProductRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresProductRepository creates a new PostgreSQL product repository
func NewPostgresProductRepository(pool *pgxpool.Pool) *PostgresProductRepository {
	return &PostgresProductRepository{pool: pool}
}

func scanProduct(row pgx.Row) (*products.Product, error) {
	var p products.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.ImageURL,
		&p.TotalBidsTarget,
		&p.CurrentBidCount,
		&p.UnitBidPrice,
		&p.WinnerID,
		&p.IsClosed,
		&p.OwnerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresProductRepository) CreateProduct(ctx context.Context, product *products.Product) error {
	query := `
		INSERT INTO products (id, name, description, image_url, total_bids_target, current_bid_count,
			unit_bid_price, is_closed, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, FALSE, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Description,
		product.ImageURL,
		product.TotalBidsTarget,
		product.UnitBidPrice,
		product.OwnerID,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// GetProductByID retrieves a product by its ID (non-transactional read)
func (r *PostgresProductRepository) GetProductByID(ctx context.Context, productID uuid.UUID) (*products.Product, error) {
	return r.getProductByID(ctx, r.pool, productID, false)
}

// GetProductByIDForUpdate locks the product row so bids on one product run one at a time
func (r *PostgresProductRepository) GetProductByIDForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*products.Product, error) {
	return r.getProductByID(ctx, tx, productID, true)
}

func (r *PostgresProductRepository) getProductByID(ctx context.Context, db pkgdb.DBTX, productID uuid.UUID, forUpdate bool) (*products.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	p, err := scanProduct(db.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, products.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// UpdateProduct writes the editable fields. The target only changes while no bid exists.
func (r *PostgresProductRepository) UpdateProduct(ctx context.Context, product *products.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, image_url = $4, unit_bid_price = $5,
			total_bids_target = $6, updated_at = $7
		WHERE id = $1
			AND is_closed = FALSE
			AND (total_bids_target = $6 OR current_bid_count = 0)
	`
	result, err := r.pool.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Description,
		product.ImageURL,
		product.UnitBidPrice,
		product.TotalBidsTarget,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return products.ErrProductChanged
	}
	return nil
}

// DeleteProduct removes a product that has not received a bid
func (r *PostgresProductRepository) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	query := `DELETE FROM products WHERE id = $1 AND current_bid_count = 0 AND is_closed = FALSE`
	result, err := r.pool.Exec(ctx, query, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return products.ErrProductNotFound
	}
	return products.ErrProductChanged
}

func (r *PostgresProductRepository) ListProducts(ctx context.Context, openOnly bool, limit, offset int) ([]*products.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1 = FALSE OR is_closed = FALSE)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, openOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	result := make([]*products.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return result, nil
}

// IncrementBidCount counts one accepted bid and returns the row as updated
func (r *PostgresProductRepository) IncrementBidCount(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*products.Product, error) {
	query := `
		UPDATE products
		SET current_bid_count = current_bid_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productColumns

	p, err := scanProduct(tx.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, products.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to increment bid count: %w", err)
	}
	return p, nil
}

// CloseProduct flips the product to closed with its winner, only if it is still open
func (r *PostgresProductRepository) CloseProduct(ctx context.Context, tx pgx.Tx, productID, winnerUserID uuid.UUID) (bool, error) {
	query := `
		UPDATE products
		SET is_closed = TRUE, winner_id = $2, updated_at = NOW()
		WHERE id = $1 AND is_closed = FALSE
	`
	result, err := tx.Exec(ctx, query, productID, winnerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to close product: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
