package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrStockUnderflow is returned when a stock adjustment would drive stock below zero.
	ErrStockUnderflow = errors.New("stock cannot go below zero")
	// ErrForbidden is returned when a farmer edits a product they do not own.
	ErrForbidden = errors.New("cannot edit another farmer's product")
)

// ValidationError reports an invalid product definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid product " + e.Field + ": " + e.Reason
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID        string
	Name      string
	Category  string
	Price     decimal.Decimal
	Stock     int
	Unit      Unit
	// OwnerID is the farmer who listed the product, empty for store stock.
	OwnerID   string
	Version   int64
	UpdatedAt time.Time
}

// Draft is the editable part of a product.
type Draft struct {
	Name     string
	Category string
	Price    decimal.Decimal
	Stock    int
	Unit     Unit
}

// Validate checks a draft before it is stored.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case !d.Price.IsPositive():
		return &ValidationError{Field: "price", Reason: "must be positive"}
	case d.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	return nil
}

// StockLevel is the observable stock state of a product, as streamed to clients.
type StockLevel struct {
	ProductID string
	Stock     int
	Version   int64
	UpdatedAt time.Time
}

// Level returns the current stock state of p.
func (p Product) Level() StockLevel {
	return StockLevel{
		ProductID: p.ID,
		Stock:     p.Stock,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
	}
}

// Repository defines the product catalog store and the non-checkout stock
// mutations used by admins and farmers.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock atomically adds delta to the stock of a product. It returns
	// ErrStockUnderflow when the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
	// Create inserts p and fills in its version and timestamp.
	Create(ctx context.Context, p *Product) error
	// Update replaces the editable fields of p and bumps its version. It
	// returns ErrNotFound when p does not exist.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
