// Package notify delivers order notifications to external email and SMS
// workers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/order"
)

// Exchange and routing keys consumed by the notification workers.
const (
	Exchange                  = "market.notifications"
	KeyOrderConfirmationEmail = "email.order_confirmation"
	KeyAdminNewOrderEmail     = "email.admin_new_order"
	KeyAdminSMS               = "sms.admin"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ order.Notifier = (*AMQP)(nil)

// AMQP publishes notification requests as JSON messages.
type AMQP struct {
	mu  sync.Mutex
	ch  Channel
	now func() time.Time
}

// NewAMQP creates an AMQP notifier on ch.
func NewAMQP(ch Channel) *AMQP {
	return &AMQP{ch: ch, now: time.Now}
}

func (n *AMQP) publish(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// amqp.Channel is not safe for concurrent publishing.
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.ch.Publish(Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}
	zctx.From(ctx).Debug("Notification queued", zap.String("routing_key", key))
	return nil
}

// OrderConfirmation queues the customer confirmation email.
func (n *AMQP) OrderConfirmation(ctx context.Context, to string, msg order.Message) error {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("to", func(e *jx.Encoder) { e.Str(to) })
		e.Field("order", func(e *jx.Encoder) { encodeMessage(e, msg) })
	})
	return n.publish(ctx, KeyOrderConfirmationEmail, e.Bytes())
}

// AdminNewOrder queues the admin email with the delivery location link.
func (n *AMQP) AdminNewOrder(ctx context.Context, to string, msg order.Message, mapsLink string) error {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("to", func(e *jx.Encoder) { e.Str(to) })
		e.Field("mapsLink", func(e *jx.Encoder) { e.Str(mapsLink) })
		e.Field("order", func(e *jx.Encoder) { encodeMessage(e, msg) })
	})
	return n.publish(ctx, KeyAdminNewOrderEmail, e.Bytes())
}

// AdminSMS queues a text message to the admin phone.
func (n *AMQP) AdminSMS(ctx context.Context, phone, body string) error {
	e := &jx.Encoder{}
	e.Obj(func(e *jx.Encoder) {
		e.Field("to", func(e *jx.Encoder) { e.Str(phone) })
		e.Field("body", func(e *jx.Encoder) { e.Str(body) })
	})
	return n.publish(ctx, KeyAdminSMS, e.Bytes())
}

func encodeMessage(e *jx.Encoder, m order.Message) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(m.OrderID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(m.Status)) })
		e.Field("customer", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(m.CustomerName) })
				e.Field("email", func(e *jx.Encoder) { e.Str(m.CustomerEmail) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(m.CustomerPhone) })
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range m.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
						e.Field("unitLabel", func(e *jx.Encoder) { e.Str(it.UnitLabel) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(m.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(m.Discount.StringFixed(2)) })
		e.Field("deliveryFee", func(e *jx.Encoder) { e.Str(m.DeliveryFee.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(m.Total.StringFixed(2)) })
		e.Field("address", func(e *jx.Encoder) { e.Str(m.Address) })
		e.Field("city", func(e *jx.Encoder) { e.Str(m.City) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(m.CreatedAt.UTC().Format(time.RFC3339)) })
	})
}
