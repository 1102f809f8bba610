package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
)

const orderColumns = `id, user_id, items, subtotal, discount, coupon_code, delivery_fee, free_delivery_applied,
	total, status, payment_mode, address, city, latitude, longitude, idempotency_key, created_at, updated_at`

const (
	idempotencyConstraint = "orders_user_idempotency_key"

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	listUserOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByIDSQL, id)
}

// FindByIdempotencyKey returns the order a user placed with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderByKeySQL, userID, key)
}

// ListByUser returns the orders of a user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns one page of orders matching f and the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	where := sq.And{}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": string(f.Status)})
	}
	if f.UserID != "" {
		where = append(where, sq.Eq{"user_id": f.UserID})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.LtOrEq{"created_at": *f.To})
	}

	countSQL, countArgs, err := psql.Select("count(*)").From("orders").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building order count query: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	query, args, err := psql.Select(orderColumns).From("orders").Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64((f.Page - 1) * f.Limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building order list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves an order from one status to another with a
// conditional update on the previous status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, order.ErrInvalidTransition
}

// InTx runs fn in a read-committed transaction.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &checkoutTx{tx: tx})
	})
}

var _ order.Tx = (*checkoutTx)(nil)

type checkoutTx struct {
	tx pgx.Tx
}

func (t *checkoutTx) DecrementStock(ctx context.Context, productID string, qty int) (product.Product, bool, error) {
	return decrementStock(ctx, t.tx, productID, qty)
}

func (t *checkoutTx) StockLevel(ctx context.Context, productID string) (int, string, error) {
	return stockLevel(ctx, t.tx, productID)
}

// LockCart takes a row lock on the user so concurrent checkouts of the same
// user run one after another, then locks the cart lines themselves so cart
// edits wait for the checkout to finish.
func (t *checkoutTx) LockCart(ctx context.Context, userID string) ([]cart.Line, error) {
	var id string
	if err := t.tx.QueryRow(ctx, lockUserSQL, userID).Scan(&id); err != nil {
		return nil, fmt.Errorf("locking user %q: %w", userID, err)
	}
	rows, err := t.tx.Query(ctx, lockCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("locking cart of %q: %w", userID, err)
	}
	return collectCartLines(rows)
}

func (t *checkoutTx) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return getOrder(ctx, t.tx, getOrderByKeySQL, userID, key)
}

func (t *checkoutTx) CreateOrder(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	var lat, lng *float64
	if o.Location != nil {
		lat, lng = &o.Location.Latitude, &o.Location.Longitude
	}
	_, err = t.tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Subtotal, o.Discount, nullString(o.CouponCode), o.DeliveryFee,
		o.FreeDelivery, o.Total, string(o.Status), string(o.PaymentMode), o.Address, o.City,
		lat, lng, nullString(o.IdempotencyKey), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyConstraint) {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *checkoutTx) ReduceCart(ctx context.Context, userID string, fulfilled map[string]int) error {
	return reduceCart(ctx, t.tx, userID, fulfilled)
}

func getOrder(ctx context.Context, q querier, query string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                    order.Order
		itemsJSON            []byte
		couponCode, key      *string
		status, paymentMode  string
		lat, lng             *float64
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Subtotal, &o.Discount, &couponCode, &o.DeliveryFee, &o.FreeDelivery,
		&o.Total, &status, &paymentMode, &o.Address, &o.City, &lat, &lng, &key, &createdAt, &updatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Status = order.Status(status)
	o.PaymentMode = order.PaymentMode(paymentMode)
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	if key != nil {
		o.IdempotencyKey = *key
	}
	if lat != nil && lng != nil {
		o.Location = &order.Location{Latitude: *lat, Longitude: *lng}
	}
	o.CreatedAt, o.UpdatedAt = createdAt, updatedAt
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
