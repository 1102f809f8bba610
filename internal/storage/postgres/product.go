package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

const productColumns = `id, name, category, price, stock, grams, pieces, owner_id, version, updated_at`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY category, name`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	adjustStockSQL = `UPDATE products
		SET stock = stock + $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING ` + productColumns

	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING ` + productColumns

	stockLevelSQL = `SELECT stock, name FROM products WHERE id = $1`

	createProductSQL = `INSERT INTO products (id, name, category, price, stock, grams, pieces, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING version, updated_at`

	updateProductSQL = `UPDATE products
		SET name = $2, category = $3, price = $4, stock = $5, grams = $6, pieces = $7,
			version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING version, updated_at`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, category, price, stock, grams, pieces)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,
			stock = EXCLUDED.stock, grams = EXCLUDED.grams, pieces = EXCLUDED.pieces,
			version = products.version + 1, updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog ordered by category and name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// AdjustStock adds delta to the stock of a product in a single conditional
// update that never lets stock go negative.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return nil, fmt.Errorf("adjusting stock of %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adjusting stock of %q: %w", id, err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, product.ErrStockUnderflow
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	grams, pieces := unitColumns(p.Unit)
	var owner *string
	if p.OwnerID != "" {
		owner = &p.OwnerID
	}
	err := r.pool.QueryRow(ctx, createProductSQL, p.ID, p.Name, p.Category, p.Price, p.Stock, grams, pieces, owner).
		Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update replaces the editable fields of a product. The owner is kept.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	grams, pieces := unitColumns(p.Unit)
	err := r.pool.QueryRow(ctx, updateProductSQL, p.ID, p.Name, p.Category, p.Price, p.Stock, grams, pieces).
		Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	return nil
}

// Delete removes a product. Cart lines referencing it go with it; placed
// orders keep their item snapshots.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a product. Used for seeding.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	grams, pieces := unitColumns(p.Unit)
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Category, p.Price, p.Stock, grams, pieces)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func decrementStock(ctx context.Context, q querier, id string, qty int) (product.Product, bool, error) {
	rows, err := q.Query(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return product.Product{}, false, fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.Product{}, false, nil
		}
		return product.Product{}, false, fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	return p, true, nil
}

func stockLevel(ctx context.Context, q querier, id string) (int, string, error) {
	var (
		stock int
		name  string
	)
	err := q.QueryRow(ctx, stockLevelSQL, id).Scan(&stock, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("reading stock of %q: %w", id, err)
	}
	return stock, name, nil
}

func unitColumns(u product.Unit) (grams, pieces *int) {
	n := u.Count()
	switch u.Kind() {
	case product.UnitGrams:
		return &n, nil
	case product.UnitPieces:
		return nil, &n
	}
	return nil, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p             product.Product
		grams, pieces *int
		owner         *string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &grams, &pieces, &owner, &p.Version, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if owner != nil {
		p.OwnerID = *owner
	}
	switch {
	case grams != nil:
		p.Unit = product.Grams(*grams)
	case pieces != nil:
		p.Unit = product.Pieces(*pieces)
	}
	return p, nil
}
