package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/coupon"
)

const couponColumns = `code, description, discount_type, discount_value, min_order_value, max_discount,
	starts_at, expires_at, usage_limit, usage_count, is_active, created_at, updated_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1, updated_at = now() WHERE code = $1`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE is_active
			AND (starts_at IS NULL OR starts_at <= $1)
			AND (expires_at IS NULL OR expires_at >= $1)
			AND (usage_limit IS NULL OR usage_count < usage_limit)
		ORDER BY code`

	createCouponSQL = `INSERT INTO coupons (code, description, discount_type, discount_value, min_order_value,
			max_discount, starts_at, expires_at, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	importCouponSQL = `INSERT INTO coupons (code, discount_type, discount_value, min_order_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`

	updateCouponSQL = `UPDATE coupons SET description = $2, discount_type = $3, discount_value = $4,
			min_order_value = $5, max_discount = $6, starts_at = $7, expires_at = $8, usage_limit = $9,
			is_active = $10, updated_at = now()
		WHERE code = $1
		RETURNING created_at, updated_at`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code. Codes are stored upper-cased.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage atomically increments the usage counter of a coupon.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", code, err)
	}
	return nil
}

// List returns one page of coupons matching f and the total match count.
func (r *CouponRepository) List(ctx context.Context, f coupon.Filter) ([]coupon.Coupon, int, error) {
	where := sq.And{}
	if f.Active != nil {
		where = append(where, sq.Eq{"is_active": *f.Active})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToUpper(q) + "%"
		where = append(where, sq.Or{sq.Like{"code": like}, sq.ILike{"description": "%" + q + "%"}})
	}

	countSQL, countArgs, err := psql.Select("count(*)").From("coupons").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building coupon count query: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting coupons: %w", err)
	}

	query, args, err := psql.Select(couponColumns).From("coupons").Where(where).
		OrderBy("created_at DESC", "code").
		Limit(uint64(f.Limit)).
		Offset(uint64((f.Page - 1) * f.Limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building coupon list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, 0, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, total, nil
}

// ListActive returns coupons usable at now.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts a coupon. It returns coupon.ErrCodeTaken on duplicate codes.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL, couponArgs(c)...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return coupon.ErrCodeTaken
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Import inserts a coupon unless its code exists. It reports whether a row
// was inserted.
func (r *CouponRepository) Import(ctx context.Context, c coupon.Coupon) (bool, error) {
	tag, err := r.pool.Exec(ctx, importCouponSQL, c.Code, string(c.DiscountType), c.DiscountValue, c.MinOrderValue)
	if err != nil {
		return false, fmt.Errorf("importing coupon %q: %w", c.Code, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update replaces the definition of an existing coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, updateCouponSQL, couponArgs(c)...).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.ErrNotFound
		}
		return fmt.Errorf("updating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Delete removes a coupon.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	var maxDiscount *decimal.Decimal
	if c.MaxDiscount.Valid {
		maxDiscount = &c.MaxDiscount.Decimal
	}
	return []any{
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MinOrderValue,
		maxDiscount, c.StartsAt, c.ExpiresAt, c.UsageLimit, c.IsActive,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		maxDiscount  *decimal.Decimal
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.DiscountValue, &c.MinOrderValue, &maxDiscount,
		&c.StartsAt, &c.ExpiresAt, &c.UsageLimit, &c.UsageCount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	if maxDiscount != nil {
		c.MaxDiscount = decimal.NewNullDecimal(*maxDiscount)
	}
	return c, err
}
