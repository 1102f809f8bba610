package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat takes a fixed amount off the subtotal.
	DiscountFlat DiscountType = "flat"
)

var (
	// ErrNotFound is returned when no coupon has the given code.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned when creating a coupon whose code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")

	ErrInactive          = errors.New("coupon inactive")
	ErrNotStarted        = errors.New("coupon not started")
	ErrExpired           = errors.New("coupon expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrBelowMinimum      = errors.New("order below coupon minimum")
)

// ValidationError reports an invalid coupon definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid coupon " + e.Field + ": " + e.Reason
}

// ParseDiscountType accepts "amount" as an alias of flat.
func ParseDiscountType(s string) (DiscountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage":
		return DiscountPercentage, nil
	case "flat", "amount":
		return DiscountFlat, nil
	}
	return "", &ValidationError{Field: "discountType", Reason: "must be percentage or flat"}
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon is a promo code definition.
type Coupon struct {
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.Decimal
	MaxDiscount   decimal.NullDecimal
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	UsageLimit    *int
	UsageCount    int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the definition of c before it is stored.
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if _, err := ParseDiscountType(string(c.DiscountType)); err != nil {
		return err
	}
	if c.DiscountValue.IsNegative() {
		return &ValidationError{Field: "discountValue", Reason: "must not be negative"}
	}
	if c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return &ValidationError{Field: "discountValue", Reason: "percentage must not exceed 100"}
	}
	if c.MinOrderValue.IsNegative() {
		return &ValidationError{Field: "minOrderValue", Reason: "must not be negative"}
	}
	if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsNegative() {
		return &ValidationError{Field: "maxDiscount", Reason: "must not be negative"}
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return &ValidationError{Field: "usageLimit", Reason: "must not be negative"}
	}
	if c.StartsAt != nil && c.ExpiresAt != nil && c.ExpiresAt.Before(*c.StartsAt) {
		return &ValidationError{Field: "expiresAt", Reason: "must not be before startsAt"}
	}
	return nil
}

// Check applies the eligibility rules in order and returns the first failure.
func (c *Coupon) Check(subtotal decimal.Decimal, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return ErrNotStarted
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	if subtotal.LessThan(c.MinOrderValue) {
		return ErrBelowMinimum
	}
	return nil
}

// Discount computes the discount for subtotal, clamped to [0, subtotal].
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		// A zero cap means no cap.
		if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsPositive() && amount.GreaterThan(c.MaxDiscount.Decimal) {
			amount = c.MaxDiscount.Decimal
		}
	default:
		amount = c.DiscountValue
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount.Round(2)
}

// Filter narrows admin coupon listings.
type Filter struct {
	Active *bool
	Query  string
	Page   int
	Limit  int
}

// Repository provides lookup and mutation of coupons. Codes are stored
// upper-cased.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	IncrementUsage(ctx context.Context, code string) error
	List(ctx context.Context, f Filter) ([]Coupon, int, error)
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
