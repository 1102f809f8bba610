package handler

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/category"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

// store is a single-lock in-memory backend for every repository the
// handlers reach. Transactions hold the lock for their whole duration and
// roll back by restoring a copy.
type store struct {
	mu       sync.Mutex
	products map[string]product.Product
	users    map[string]user.User
	hashes   map[string][]byte
	carts    map[string][]cart.Line
	cats     map[string]category.Category
	orders   []order.Order
	delivery *delivery.Config
	audit    []audit.Entry

	// Coupons are evaluated inside checkout transactions.
	couponMu sync.Mutex
	coupons  map[string]coupon.Coupon
}

func newStore() *store {
	return &store{
		products: map[string]product.Product{},
		users:    map[string]user.User{},
		hashes:   map[string][]byte{},
		carts:    map[string][]cart.Line{},
		cats:     map[string]category.Category{},
		coupons:  map[string]coupon.Coupon{},
	}
}

type (
	memProducts struct{ *store }
	memCarts    struct{ *store }
	memUsers    struct{ *store }
	memOrders   struct{ *store }
	memCoupons  struct{ *store }
	memDelivery struct{ *store }
	memAudit    struct{ *store }
	memCats     struct{ *store }
)

// Products.

func (s memProducts) List(context.Context) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s memProducts) AdjustStock(_ context.Context, id string, delta int) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return nil, product.ErrStockUnderflow
	}
	p.Stock += delta
	p.Version++
	s.products[id] = p
	return &p, nil
}

func (s memProducts) Create(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Version = 1
	p.UpdatedAt = time.Now()
	s.products[p.ID] = *p
	return nil
}

func (s memProducts) Update(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return product.ErrNotFound
	}
	p.Version++
	p.UpdatedAt = time.Now()
	s.products[p.ID] = *p
	return nil
}

func (s memProducts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// Carts.

func (s memCarts) Lines(_ context.Context, userID string) ([]cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cart.Line(nil), s.carts[userID]...), nil
}

func (s memCarts) Add(_ context.Context, userID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.carts[userID] {
		if l.ProductID == productID {
			s.carts[userID][i].Quantity += qty
			return nil
		}
	}
	s.carts[userID] = append(s.carts[userID], cart.Line{ProductID: productID, Quantity: qty})
	return nil
}

func (s memCarts) Set(ctx context.Context, userID, productID string, qty int) error {
	if qty == 0 {
		return s.Remove(ctx, userID, productID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.carts[userID] {
		if l.ProductID == productID {
			s.carts[userID][i].Quantity = qty
			return nil
		}
	}
	s.carts[userID] = append(s.carts[userID], cart.Line{ProductID: productID, Quantity: qty})
	return nil
}

func (s memCarts) Remove(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[userID][:0:0]
	for _, l := range s.carts[userID] {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	s.carts[userID] = lines
	return nil
}

func (s memCarts) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return nil
}

// Users.

func (s memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (s memUsers) UpdateProfile(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return user.ErrNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s memUsers) Create(_ context.Context, u *user.User, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	u.CreatedAt = time.Now()
	s.users[u.ID] = *u
	s.hashes[u.ID] = hash
	return nil
}

func (s memUsers) PasswordHash(_ context.Context, email string) (*user.User, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, s.hashes[u.ID], nil
		}
	}
	return nil, nil, user.ErrNotFound
}

// Categories.

func (s memCats) sorted() []category.Category {
	out := make([]category.Category, 0, len(s.cats))
	for _, c := range s.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s memCats) List(context.Context) ([]category.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(), nil
}

func (s memCats) Page(_ context.Context, f category.Filter) ([]category.Category, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []category.Category
	for _, c := range s.sorted() {
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Query)) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (s memCats) GetByID(_ context.Context, id string) (*category.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func (s memCats) put(c *category.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.cats {
		if other.ID != c.ID && (other.Name == c.Name || other.Slug == c.Slug) {
			return category.ErrExists
		}
	}
	s.cats[c.ID] = *c
	return nil
}

func (s memCats) Create(_ context.Context, c *category.Category) error { return s.put(c) }

func (s memCats) Update(_ context.Context, c *category.Category) error { return s.put(c) }

func (s memCats) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cats, id)
	return nil
}

// Orders.

func (s *store) orderByKey(userID, key string) (*order.Order, error) {
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s memOrders) FindByIdempotencyKey(_ context.Context, userID, key string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderByKey(userID, key)
}

func (s memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].UserID == userID {
			out = append(out, s.orders[i])
		}
	}
	return out, nil
}

func (s memOrders) List(_ context.Context, f order.Filter) ([]order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, o := range s.orders {
		if (f.Status == "" || o.Status == f.Status) && (f.UserID == "" || o.UserID == f.UserID) {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (s memOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		if s.orders[i].Status != from {
			return nil, order.ErrInvalidTransition
		}
		s.orders[i].Status = to
		o := s.orders[i]
		return &o, nil
	}
	return nil, order.ErrNotFound
}

func (s memOrders) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[string]product.Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	carts := make(map[string][]cart.Line, len(s.carts))
	for k, v := range s.carts {
		carts[k] = v
	}
	orders := len(s.orders)

	if err := fn(ctx, memTx{s.store}); err != nil {
		s.products, s.carts, s.orders = products, carts, s.orders[:orders]
		return err
	}
	return nil
}

// memTx runs with store.mu held by InTx.
type memTx struct{ *store }

func (tx memTx) DecrementStock(_ context.Context, id string, qty int) (product.Product, bool, error) {
	p, ok := tx.products[id]
	if !ok || p.Stock < qty {
		return product.Product{}, false, nil
	}
	p.Stock -= qty
	p.Version++
	p.UpdatedAt = time.Now()
	tx.products[id] = p
	return p, true, nil
}

func (tx memTx) StockLevel(_ context.Context, id string) (int, string, error) {
	p := tx.products[id]
	return p.Stock, p.Name, nil
}

func (tx memTx) LockCart(_ context.Context, userID string) ([]cart.Line, error) {
	return append([]cart.Line(nil), tx.carts[userID]...), nil
}

func (tx memTx) FindByIdempotencyKey(_ context.Context, userID, key string) (*order.Order, error) {
	return tx.orderByKey(userID, key)
}

func (tx memTx) CreateOrder(_ context.Context, o *order.Order) error {
	if o.IdempotencyKey != "" {
		if _, err := tx.orderByKey(o.UserID, o.IdempotencyKey); err == nil {
			return order.ErrDuplicateIdempotencyKey
		}
	}
	tx.orders = append(tx.orders, *o)
	return nil
}

func (tx memTx) ReduceCart(_ context.Context, userID string, fulfilled map[string]int) error {
	tx.carts[userID] = cart.Reconcile(tx.carts[userID], fulfilled)
	return nil
}

// Coupons.

func (s memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (s memCoupons) IncrementUsage(_ context.Context, code string) error {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	c := s.coupons[code]
	c.UsageCount++
	s.coupons[code] = c
	return nil
}

func (s memCoupons) List(_ context.Context, f coupon.Filter) ([]coupon.Coupon, int, error) {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	var out []coupon.Coupon
	for _, c := range s.coupons {
		if f.Query != "" && !strings.Contains(c.Code, strings.ToUpper(f.Query)) {
			continue
		}
		if f.Active != nil && c.IsActive != *f.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, len(out), nil
}

func (s memCoupons) ListActive(ctx context.Context, _ time.Time) ([]coupon.Coupon, error) {
	active := true
	out, _, err := s.List(ctx, coupon.Filter{Active: &active})
	return out, err
}

func (s memCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	if _, ok := s.coupons[c.Code]; ok {
		return coupon.ErrCodeTaken
	}
	s.coupons[c.Code] = *c
	return nil
}

func (s memCoupons) Update(_ context.Context, c *coupon.Coupon) error {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	if _, ok := s.coupons[c.Code]; !ok {
		return coupon.ErrNotFound
	}
	s.coupons[c.Code] = *c
	return nil
}

func (s memCoupons) Delete(_ context.Context, code string) error {
	s.couponMu.Lock()
	defer s.couponMu.Unlock()
	if _, ok := s.coupons[code]; !ok {
		return coupon.ErrNotFound
	}
	delete(s.coupons, code)
	return nil
}

// Delivery.

func (s memDelivery) Get(context.Context) (*delivery.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivery == nil {
		c := delivery.Default()
		return &c, nil
	}
	c := *s.delivery
	return &c, nil
}

func (s memDelivery) Save(_ context.Context, c *delivery.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.delivery = &cp
	return nil
}

// Audit.

func (s memAudit) Append(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s memAudit) List(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.audit {
		if (f.EntityType == "" || e.EntityType == f.EntityType) && (f.EntityID == "" || e.EntityID == f.EntityID) {
			out = append(out, e)
		}
	}
	return out, nil
}
