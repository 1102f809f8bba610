package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Message is the order summary sent to customers and admins.
type Message struct {
	OrderID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []Item
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal
	Address       string
	City          string
	Status        Status
	CreatedAt     time.Time
}

// Notifier sends order notifications through external providers. Callers
// treat every failure as non-fatal.
type Notifier interface {
	OrderConfirmation(ctx context.Context, to string, msg Message) error
	AdminNewOrder(ctx context.Context, to string, msg Message, mapsLink string) error
	AdminSMS(ctx context.Context, phone, body string) error
}

// TaskRunner runs work detached from the request lifecycle.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Admin holds the admin notification targets. Empty values disable the
// corresponding channel.
type Admin struct {
	Email string
	Phone string
	// PortalURL is the admin web app base URL linked from SMS messages.
	PortalURL string
}

// OrderLink returns the admin portal page of an order, or "" when no portal
// is configured.
func (a Admin) OrderLink(orderID string) string {
	if a.PortalURL == "" {
		return ""
	}
	return strings.TrimRight(a.PortalURL, "/") + "/orders/" + orderID
}
