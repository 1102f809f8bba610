package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

// ErrInvalidQuantity is returned for negative quantities, or zero where a line
// is being added.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Line is a single persisted cart entry. Quantity is always at least 1.
type Line struct {
	ProductID string
	Quantity  int
}

// Item is a cart line joined with its current product data.
type Item struct {
	Product  product.Product
	Quantity int
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// View is the rendered cart of a user.
type View struct {
	Items    []Item
	Subtotal decimal.Decimal
}

// Repository persists cart lines keyed by (user, product).
type Repository interface {
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Add increments the quantity of an existing line, or inserts it.
	Add(ctx context.Context, userID, productID string, qty int) error
	// Set overwrites the quantity of a line; zero deletes it.
	Set(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Reconcile subtracts fulfilled quantities from the cart. Lines that reach
// zero are dropped; lines not present in fulfilled are kept as is.
func Reconcile(lines []Line, fulfilled map[string]int) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		left := l.Quantity - fulfilled[l.ProductID]
		if left <= 0 {
			continue
		}
		out = append(out, Line{ProductID: l.ProductID, Quantity: left})
	}
	return out
}
