package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/hearth-checkout/internal/domain/product"
)

const (
	// Oldest product wins when several share a name.
	resolveProductNamesSQL = `SELECT DISTINCT ON (name) name, id::text
		FROM products WHERE name = ANY($1)
		ORDER BY name, created_at, id`

	insertProductSQL = `INSERT INTO products (name, price, category, image_url)
		VALUES ($1, $2, $3, $4) RETURNING id::text`

	countProductsSQL = `SELECT count(*) FROM products`
)

var _ product.Resolver = (*ProductRepository)(nil)

// ProductRepository implements product.Resolver backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ResolveNames maps exact product names to catalog ids.
func (r *ProductRepository) ResolveNames(ctx context.Context, names []string) (map[string]string, error) {
	ids := make(map[string]string, len(names))
	if len(names) == 0 {
		return ids, nil
	}

	rows, err := r.pool.Query(ctx, resolveProductNamesSQL, names)
	if err != nil {
		return nil, fmt.Errorf("resolving %d product names: %w", len(names), err)
	}
	var name, id string
	_, err = pgx.ForEachRow(rows, []any{&name, &id}, func() error {
		ids[name] = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %d product names: %w", len(names), err)
	}
	return ids, nil
}

// NewProduct is a catalog row to seed.
type NewProduct struct {
	Name     string
	Price    decimal.Decimal
	Category string
	ImageURL string
}

// Insert adds p to the catalog and returns its id.
func (r *ProductRepository) Insert(ctx context.Context, p NewProduct) (string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, insertProductSQL, p.Name, p.Price, p.Category, p.ImageURL).Scan(&id); err != nil {
		return "", fmt.Errorf("inserting product %q: %w", p.Name, err)
	}
	return id, nil
}

// Count returns the number of catalog products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countProductsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}
