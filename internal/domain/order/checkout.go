package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/inventory"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

// DefaultCheckoutTimeout bounds the checkout transaction when none is configured.
const DefaultCheckoutTimeout = 5 * time.Second

// StockPublisher receives stock levels after they are committed.
type StockPublisher interface {
	Publish(level product.StockLevel)
}

// CouponEvaluator prices a coupon code against a subtotal.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Applied, error)
}

// CouponUsage counts coupon redemptions.
type CouponUsage interface {
	IncrementUsage(ctx context.Context, code string) error
}

// CartReader reads the persisted cart of a user.
type CartReader interface {
	Lines(ctx context.Context, userID string) ([]cart.Line, error)
}

// CheckoutDeps wires the collaborators of Checkout.
type CheckoutDeps struct {
	Orders   Repository
	Users    user.Repository
	Carts    CartReader
	Coupons  CouponEvaluator
	Usage    CouponUsage
	Delivery delivery.Repository
	Stock    StockPublisher
	Tasks    TaskRunner
	Notifier Notifier
	Admin    Admin
	Timeout  time.Duration
}

// Checkout turns a user's cart into an order.
type Checkout struct {
	CheckoutDeps
	now   func() time.Time
	newID func() string
}

// NewCheckout creates a Checkout.
func NewCheckout(deps CheckoutDeps) *Checkout {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultCheckoutTimeout
	}
	return &Checkout{
		CheckoutDeps: deps,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// CheckoutRequest is the client input. The items come from the stored cart.
type CheckoutRequest struct {
	UserID         string
	Address        string
	City           string
	Latitude       *float64
	Longitude      *float64
	PaymentMode    string
	IdempotencyKey string
	CouponCode     string
}

// CheckoutResult is a created or replayed order.
type CheckoutResult struct {
	Order      *Order
	OutOfStock []inventory.Shortage
	// Replayed is set when the idempotency key matched an existing order.
	Replayed bool
}

type checkoutState struct {
	order      *Order
	reserved   []*inventory.Reserved
	outOfStock []inventory.Shortage
	applied    *coupon.Applied
	replay     *Order
}

// Place runs the checkout. Stock is reserved line by line; lines that cannot
// be reserved are reported in OutOfStock and stay in the cart. The order
// insert and the cart update commit together or not at all.
func (c *Checkout) Place(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	mode, err := ParsePaymentMode(req.PaymentMode)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" {
		existing, err := c.Orders.FindByIdempotencyKey(ctx, req.UserID, key)
		switch {
		case err == nil:
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find by idempotency key")
		}
	}

	u, err := c.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	lines, err := c.Carts.Lines(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(lines) == 0 {
		return c.emptyCart(ctx, req.UserID, key)
	}
	cfg, err := c.Delivery.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get delivery config")
	}

	txCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var st checkoutState
	err = c.Orders.InTx(txCtx, func(ctx context.Context, tx Tx) error {
		st = checkoutState{}
		return c.place(ctx, tx, req, key, mode, u, cfg, &st)
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		existing, ferr := c.Orders.FindByIdempotencyKey(ctx, req.UserID, key)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "refetch idempotent order")
		}
		return &CheckoutResult{Order: existing, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if st.replay != nil {
		return &CheckoutResult{Order: st.replay, Replayed: true}, nil
	}

	c.afterCommit(ctx, u, &st)

	return &CheckoutResult{Order: st.order, OutOfStock: st.outOfStock}, nil
}

// emptyCart reports ErrEmptyCart unless the cart was emptied by a
// concurrent checkout carrying the same idempotency key.
func (c *Checkout) emptyCart(ctx context.Context, userID, key string) (*CheckoutResult, error) {
	if key == "" {
		return nil, ErrEmptyCart
	}
	existing, err := c.Orders.FindByIdempotencyKey(ctx, userID, key)
	switch {
	case err == nil:
		return &CheckoutResult{Order: existing, Replayed: true}, nil
	case errors.Is(err, ErrNotFound):
		return nil, ErrEmptyCart
	default:
		return nil, errors.Wrap(err, "find by idempotency key")
	}
}

func (c *Checkout) place(
	ctx context.Context,
	tx Tx,
	req CheckoutRequest,
	key string,
	mode PaymentMode,
	u *user.User,
	cfg *delivery.Config,
	st *checkoutState,
) error {
	lg := zctx.From(ctx)

	lines, err := tx.LockCart(ctx, u.ID)
	if err != nil {
		return errors.Wrap(err, "lock cart")
	}

	// A concurrent request with the same key may have committed while this
	// one waited on the cart lock.
	if key != "" {
		existing, err := tx.FindByIdempotencyKey(ctx, u.ID, key)
		switch {
		case err == nil:
			st.replay = existing
			return nil
		case !errors.Is(err, ErrNotFound):
			return errors.Wrap(err, "find by idempotency key")
		}
	}
	if len(lines) == 0 {
		return ErrEmptyCart
	}

	st.reserved, st.outOfStock, err = reserveAll(ctx, tx, lines)
	if err != nil {
		return err
	}

	fulfilled := make(map[string]int, len(st.reserved))
	subtotal := decimal.Zero
	weight := decimal.Zero
	items := make([]Item, 0, len(st.reserved))
	for _, r := range st.reserved {
		fulfilled[r.ProductID] = r.Quantity
		subtotal = subtotal.Add(r.LineTotal())
		weight = weight.Add(r.WeightKg())
		items = append(items, Item{
			ProductID: r.ProductID,
			Name:      r.Name,
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
			UnitLabel: r.Unit.Label(),
		})
	}
	if len(st.reserved) == 0 {
		return &AllItemsUnavailableError{OutOfStock: st.outOfStock}
	}
	subtotal = subtotal.Round(2)

	if minimum := cfg.MinOrderSubtotal; minimum.IsPositive() && subtotal.LessThan(minimum) {
		return &MinimumOrderError{
			Minimum:    minimum.Round(2),
			Subtotal:   subtotal,
			Shortfall:  minimum.Sub(subtotal).Round(2),
			OutOfStock: st.outOfStock,
		}
	}

	discount := decimal.Zero
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		applied, err := c.Coupons.Evaluate(ctx, code, subtotal)
		if err != nil {
			lg.Debug("Coupon not applied", zap.String("coupon", code), zap.Error(err))
		} else {
			st.applied = applied
			discount = applied.Amount.Round(2)
		}
	}

	city := strings.TrimSpace(req.City)
	if city == "" {
		city = u.Address.City
	}
	quote, err := cfg.Quote(city, weight, subtotal.Sub(discount))
	if err != nil {
		return err
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = u.Address.Line
	}

	now := c.now().UTC()
	o := &Order{
		ID:             c.newID(),
		UserID:         u.ID,
		Items:          items,
		Subtotal:       subtotal,
		Discount:       discount,
		DeliveryFee:    quote.Fee.Round(2),
		FreeDelivery:   quote.Free,
		Status:         StatusPending,
		PaymentMode:    mode,
		Address:        address,
		City:           city,
		Location:       resolveLocation(req, u),
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if st.applied != nil {
		o.CouponCode = st.applied.Code
	}
	o.Total = o.Subtotal.Sub(o.Discount).Add(o.DeliveryFee).Round(2)

	if err := tx.CreateOrder(ctx, o); err != nil {
		return err
	}
	if err := tx.ReduceCart(ctx, u.ID, fulfilled); err != nil {
		return errors.Wrap(err, "reduce cart")
	}

	st.order = o
	return nil
}

// reserveAll reserves every cart line. Product rows are locked in id order so
// checkouts of overlapping carts cannot deadlock; results keep cart order.
func reserveAll(ctx context.Context, tx Tx, lines []cart.Line) ([]*inventory.Reserved, []inventory.Shortage, error) {
	byID := make([]int, len(lines))
	for i := range byID {
		byID[i] = i
	}
	slices.SortStableFunc(byID, func(a, b int) int {
		return strings.Compare(lines[a].ProductID, lines[b].ProductID)
	})

	reserved := make([]*inventory.Reserved, len(lines))
	short := make([]*inventory.Shortage, len(lines))
	for _, i := range byID {
		l := lines[i]
		r, err := inventory.Reserve(ctx, tx, l.ProductID, l.Quantity)
		if err != nil {
			var stockErr *inventory.InsufficientStockError
			if errors.As(err, &stockErr) {
				short[i] = &stockErr.Shortage
				continue
			}
			return nil, nil, errors.Wrapf(err, "reserve %s", l.ProductID)
		}
		reserved[i] = r
	}

	var (
		ok  []*inventory.Reserved
		out []inventory.Shortage
	)
	for i := range lines {
		switch {
		case reserved[i] != nil:
			ok = append(ok, reserved[i])
		case short[i] != nil:
			out = append(out, *short[i])
		}
	}
	return ok, out, nil
}

func resolveLocation(req CheckoutRequest, u *user.User) *Location {
	if req.Latitude != nil && req.Longitude != nil {
		return &Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	if u.Address.Latitude != nil && u.Address.Longitude != nil {
		return &Location{Latitude: *u.Address.Latitude, Longitude: *u.Address.Longitude}
	}
	return nil
}

// afterCommit publishes stock levels and schedules best-effort side effects.
func (c *Checkout) afterCommit(ctx context.Context, u *user.User, st *checkoutState) {
	o := st.order
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Int("items", len(o.Items)),
		zap.Int("out_of_stock", len(st.outOfStock)),
		zap.String("total", o.Total.String()),
	)

	if c.Stock != nil {
		for _, r := range st.reserved {
			c.Stock.Publish(r.Level)
		}
	}
	if c.Tasks == nil {
		return
	}

	if st.applied != nil && c.Usage != nil {
		code := st.applied.Code
		c.Tasks.Go("coupon.increment_usage", func(ctx context.Context) error {
			return c.Usage.IncrementUsage(ctx, code)
		})
	}
	if c.Notifier == nil {
		return
	}

	msg := NewMessage(o, u)
	if u.Email != "" {
		c.Tasks.Go("notify.order_confirmation", func(ctx context.Context) error {
			return c.Notifier.OrderConfirmation(ctx, u.Email, msg)
		})
	}
	if c.Admin.Email != "" {
		link := MapsLink(o.Location)
		c.Tasks.Go("notify.admin_new_order", func(ctx context.Context) error {
			return c.Notifier.AdminNewOrder(ctx, c.Admin.Email, msg, link)
		})
	}
	if c.Admin.Phone != "" {
		body := fmt.Sprintf("New order %s from %s: %d item(s), total %s",
			o.ID, u.Name, len(o.Items), o.Total.StringFixed(2))
		if link := c.Admin.OrderLink(o.ID); link != "" {
			body += " " + link
		}
		c.Tasks.Go("notify.admin_sms", func(ctx context.Context) error {
			return c.Notifier.AdminSMS(ctx, c.Admin.Phone, body)
		})
	}
}

// NewMessage builds the notification payload for o.
func NewMessage(o *Order, u *user.User) Message {
	m := Message{
		OrderID:     o.ID,
		Items:       o.Items,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		DeliveryFee: o.DeliveryFee,
		Total:       o.Total,
		Address:     o.Address,
		City:        o.City,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
	if u != nil {
		m.CustomerName = u.Name
		m.CustomerEmail = u.Email
		m.CustomerPhone = u.Phone
	}
	return m
}
