package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/order"
)

var _ order.Notifier = Log{}

// Log is a Notifier that only writes log lines. It is used when no broker
// is configured.
type Log struct{}

func (Log) OrderConfirmation(ctx context.Context, to string, msg order.Message) error {
	zctx.From(ctx).Info("Order confirmation",
		zap.String("to", to),
		zap.String("order_id", msg.OrderID),
		zap.String("total", msg.Total.StringFixed(2)),
	)
	return nil
}

func (Log) AdminNewOrder(ctx context.Context, to string, msg order.Message, mapsLink string) error {
	zctx.From(ctx).Info("Admin order notification",
		zap.String("to", to),
		zap.String("order_id", msg.OrderID),
		zap.String("status", string(msg.Status)),
		zap.String("maps_link", mapsLink),
	)
	return nil
}

func (Log) AdminSMS(ctx context.Context, phone, body string) error {
	zctx.From(ctx).Info("Admin SMS", zap.String("to", phone), zap.String("body", body))
	return nil
}
