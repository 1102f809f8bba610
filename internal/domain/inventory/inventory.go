// Package inventory reserves product stock with atomic conditional decrements.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

// Store performs conditional stock writes. Implementations must apply the
// decrement in a single statement guarded by stock >= qty.
type Store interface {
	// DecrementStock subtracts qty from the stock of a product if at least qty
	// units are available. ok is false when no row matched the condition.
	DecrementStock(ctx context.Context, productID string, qty int) (p product.Product, ok bool, err error)
	// StockLevel returns the current stock of a product, or zero when it does
	// not exist.
	StockLevel(ctx context.Context, productID string) (stock int, name string, err error)
}

// Shortage describes a cart line that could not be reserved.
type Shortage struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

// InsufficientStockError reports a failed reservation.
type InsufficientStockError struct {
	Shortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Reserved is a successful reservation with the product data frozen at the
// moment of the decrement.
type Reserved struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Unit      product.Unit
	Quantity  int
	Level     product.StockLevel
}

// LineTotal returns price times quantity.
func (r Reserved) LineTotal() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// WeightKg returns the shipping weight of the reserved units.
func (r Reserved) WeightKg() decimal.Decimal {
	return r.Unit.WeightKg().Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Reserve takes qty units of a product. When stock is short it returns an
// *InsufficientStockError carrying a best-effort read of the remaining stock.
func Reserve(ctx context.Context, store Store, productID string, qty int) (*Reserved, error) {
	if qty <= 0 {
		return nil, errors.Errorf("invalid quantity %d", qty)
	}

	p, ok, err := store.DecrementStock(ctx, productID, qty)
	if err != nil {
		return nil, errors.Wrap(err, "decrement stock")
	}
	if !ok {
		available, name, err := store.StockLevel(ctx, productID)
		if err != nil {
			return nil, errors.Wrap(err, "read stock level")
		}
		return nil, &InsufficientStockError{Shortage{
			ProductID: productID,
			Name:      name,
			Requested: qty,
			Available: available,
		}}
	}

	return &Reserved{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Unit:      p.Unit,
		Quantity:  qty,
		Level:     p.Level(),
	}, nil
}
