package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/cart"
)

const (
	cartLinesSQL = `SELECT product_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	addCartLineSQL = `INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	setCartLineSQL = `INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	removeCartLineSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	lockUserSQL = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	lockCartLinesSQL = `SELECT product_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id FOR UPDATE`

	dropCartLineSQL = `DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2 AND quantity <= $3`

	reduceCartLineSQL = `UPDATE cart_items SET quantity = quantity - $3
		WHERE user_id = $1 AND product_id = $2 AND quantity > $3`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the cart of a user in insertion order.
func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	return cartLines(ctx, r.pool, userID)
}

// Add increments an existing line or inserts a new one.
func (r *CartRepository) Add(ctx context.Context, userID, productID string, qty int) error {
	if _, err := r.pool.Exec(ctx, addCartLineSQL, userID, productID, qty); err != nil {
		return fmt.Errorf("adding %q to cart: %w", productID, err)
	}
	return nil
}

// Set overwrites the quantity of a line; zero deletes it.
func (r *CartRepository) Set(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return r.Remove(ctx, userID, productID)
	}
	if _, err := r.pool.Exec(ctx, setCartLineSQL, userID, productID, qty); err != nil {
		return fmt.Errorf("setting %q in cart: %w", productID, err)
	}
	return nil
}

// Remove deletes a line.
func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, removeCartLineSQL, userID, productID); err != nil {
		return fmt.Errorf("removing %q from cart: %w", productID, err)
	}
	return nil
}

// Clear deletes every line of a user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func cartLines(ctx context.Context, q querier, userID string) ([]cart.Line, error) {
	rows, err := q.Query(ctx, cartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting cart of %q: %w", userID, err)
	}
	return collectCartLines(rows)
}

func collectCartLines(rows pgx.Rows) ([]cart.Line, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
}

// reduceCart subtracts fulfilled units relative to the stored quantities, so
// units added after the cart was read are kept.
func reduceCart(ctx context.Context, tx pgx.Tx, userID string, fulfilled map[string]int) error {
	if len(fulfilled) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for productID, qty := range fulfilled {
		batch.Queue(dropCartLineSQL, userID, productID, qty)
		batch.Queue(reduceCartLineSQL, userID, productID, qty)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("reducing cart of %q: %w", userID, err)
	}
	return nil
}
