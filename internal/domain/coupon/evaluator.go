package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Applied is a coupon that passed every rule.
type Applied struct {
	Code   string
	Amount decimal.Decimal
}

// Finder looks up coupons by code.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Evaluator checks a coupon code against a subtotal.
type Evaluator struct {
	coupons Finder
	now     func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Finder.
func NewEvaluator(coupons Finder) *Evaluator {
	return &Evaluator{coupons: coupons, now: time.Now}
}

// Evaluate returns the discount for code on subtotal, or the reason the
// coupon cannot be applied.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*Applied, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}

	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := c.Check(subtotal, e.now()); err != nil {
		return nil, err
	}

	return &Applied{Code: c.Code, Amount: c.Discount(subtotal)}, nil
}
