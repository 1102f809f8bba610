package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

// Service implements order reads and admin status changes.
type Service struct {
	orders   Repository
	users    user.Repository
	audit    *audit.Recorder
	tasks    TaskRunner
	notifier Notifier
	admin    Admin
}

// NewService creates an order Service.
func NewService(
	orders Repository,
	users user.Repository,
	rec *audit.Recorder,
	tasks TaskRunner,
	notifier Notifier,
	admin Admin,
) *Service {
	return &Service{
		orders:   orders,
		users:    users,
		audit:    rec,
		tasks:    tasks,
		notifier: notifier,
		admin:    admin,
	}
}

// History returns the orders of a user, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// List returns one page of orders matching f and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, int, error) {
	f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// UpdateStatus moves an order to a new status. Entering confirmed notifies
// the admin with the delivery location.
func (s *Service) UpdateStatus(ctx context.Context, actor audit.Actor, id string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	cur, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(cur.Status, to) {
		return nil, errors.Wrap(ErrInvalidTransition, fmt.Sprintf("%s to %s", cur.Status, to))
	}

	updated, err := s.orders.UpdateStatus(ctx, id, cur.Status, to)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionOrderStatusUpdate,
		EntityType: "order",
		EntityID:   id,
		Before:     map[string]Status{"status": cur.Status},
		After:      map[string]Status{"status": to},
	})

	if to == StatusConfirmed {
		s.notifyConfirmed(ctx, updated)
	}
	return updated, nil
}

func (s *Service) notifyConfirmed(ctx context.Context, o *Order) {
	if s.tasks == nil || s.notifier == nil {
		return
	}
	link := MapsLink(o.Location)

	u, err := s.users.GetByID(ctx, o.UserID)
	if err != nil {
		zctx.From(ctx).Warn("Load order customer", zap.String("order_id", o.ID), zap.Error(err))
		u = nil
	}
	msg := NewMessage(o, u)

	if s.admin.Email != "" {
		s.tasks.Go("notify.admin_order_confirmed", func(ctx context.Context) error {
			return s.notifier.AdminNewOrder(ctx, s.admin.Email, msg, link)
		})
	}
	if s.admin.Phone != "" {
		body := fmt.Sprintf("Order %s confirmed. Deliver to: %s", o.ID, link)
		s.tasks.Go("notify.admin_sms", func(ctx context.Context) error {
			return s.notifier.AdminSMS(ctx, s.admin.Phone, body)
		})
	}
}
