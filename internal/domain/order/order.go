package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/inventory"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMode is how the customer pays.
type PaymentMode string

// PaymentCOD is cash on delivery, the only supported mode.
const PaymentCOD PaymentMode = "COD"

// ParsePaymentMode defaults an empty value to cash on delivery.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(PaymentCOD):
		return PaymentCOD, nil
	}
	return "", ErrUnsupportedPaymentMode
}

var (
	ErrNotFound                = errors.New("order not found")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrInvalidStatus           = errors.New("invalid status value")
	ErrUnsupportedPaymentMode  = errors.New("unsupported payment mode")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// AllItemsUnavailableError aborts a checkout where no line could be reserved.
type AllItemsUnavailableError struct {
	OutOfStock []inventory.Shortage
}

func (e *AllItemsUnavailableError) Error() string {
	return fmt.Sprintf("all %d cart items are unavailable", len(e.OutOfStock))
}

// MinimumOrderError aborts a checkout whose subtotal is under the store minimum.
type MinimumOrderError struct {
	Minimum    decimal.Decimal
	Subtotal   decimal.Decimal
	Shortfall  decimal.Decimal
	OutOfStock []inventory.Shortage
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("minimum order subtotal is %s, got %s", e.Minimum, e.Subtotal)
}

// Item is a frozen snapshot of a purchased product.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	UnitLabel string          `json:"unitLabel,omitempty"`
}

// LineTotal returns price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Location is a delivery coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// MapsLink renders a search link for l, or a placeholder when unknown.
func MapsLink(l *Location) string {
	if l == nil {
		return "Location not available"
	}
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", l.Latitude, l.Longitude)
}

// Order is created once at checkout and never deleted. Only Status changes.
type Order struct {
	ID             string
	UserID         string
	Items          []Item
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	CouponCode     string
	DeliveryFee    decimal.Decimal
	FreeDelivery   bool
	Total          decimal.Decimal
	Status         Status
	PaymentMode    PaymentMode
	Address        string
	City           string
	Location       *Location
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Filter narrows admin order listings.
type Filter struct {
	Status Status
	UserID string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// MaxPageSize bounds admin listings.
const MaxPageSize = 100

// Normalize applies paging defaults and bounds.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateStatus moves an order from one status to another. It returns
	// ErrInvalidTransition when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
	// InTx runs fn inside a single database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes a checkout performs atomically.
type Tx interface {
	inventory.Store
	// LockCart locks the user's cart for the rest of the transaction and
	// returns its lines.
	LockCart(ctx context.Context, userID string) ([]cart.Line, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// CreateOrder inserts o. It returns ErrDuplicateIdempotencyKey when
	// (user, key) already exists.
	CreateOrder(ctx context.Context, o *Order) error
	// ReduceCart subtracts fulfilled units from the current cart lines and
	// drops lines that reach zero. Lines not in fulfilled are left alone.
	ReduceCart(ctx context.Context, userID string, fulfilled map[string]int) error
}
