package order

import (
	"context"
	"sort"
	"sync"

	"github.com/go-faster/errors"

	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

type memState struct {
	products map[string]product.Product
	carts    map[string][]cart.Line
	orders   []Order
}

func (s memState) clone() memState {
	c := memState{
		products: make(map[string]product.Product, len(s.products)),
		carts:    make(map[string][]cart.Line, len(s.carts)),
		orders:   append([]Order(nil), s.orders...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]cart.Line(nil), v...)
	}
	return c
}

func (s *memState) findByKey(userID, key string) (*Order, error) {
	for _, o := range s.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

// memDB is an in-memory order store. Transactions run one at a time on a
// copy of the state that replaces the original only on success.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   memState

	// hideKeysInTx makes in-transaction idempotency lookups miss, so the
	// unique key check on insert is the only guard.
	hideKeysInTx bool
	txCount      int
	// reserveOrder lists product ids in the order stock was decremented.
	reserveOrder []string
}

func newMemDB() *memDB {
	return &memDB{st: memState{
		products: map[string]product.Product{},
		carts:    map[string][]cart.Line{},
	}}
}

func (db *memDB) addProduct(p product.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.products[p.ID] = p
}

func (db *memDB) setCart(userID string, lines ...cart.Line) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.carts[userID] = lines
}

func (db *memDB) stock(id string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.products[id].Stock
}

func (db *memDB) cart(userID string) []cart.Line {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]cart.Line(nil), db.st.carts[userID]...)
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.st.orders)
}

func (db *memDB) Lines(_ context.Context, userID string) ([]cart.Line, error) {
	return db.cart(userID), nil
}

func (db *memDB) GetByID(_ context.Context, id string) (*Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range db.st.orders {
		if o.ID == id {
			o := o
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (db *memDB) FindByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.findByKey(userID, key)
}

func (db *memDB) ListByUser(_ context.Context, userID string) ([]Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Order
	for _, o := range db.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (db *memDB) List(_ context.Context, f Filter) ([]Order, int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []Order
	for _, o := range db.st.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (db *memDB) UpdateStatus(_ context.Context, id string, from, to Status) (*Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, o := range db.st.orders {
		if o.ID != id {
			continue
		}
		if o.Status != from {
			return nil, ErrInvalidTransition
		}
		db.st.orders[i].Status = to
		updated := db.st.orders[i]
		return &updated, nil
	}
	return nil, ErrNotFound
}

func (db *memDB) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	work := db.st.clone()
	db.txCount++
	db.mu.Unlock()

	if err := fn(ctx, &memTx{db: db, st: &work}); err != nil {
		return err
	}

	db.mu.Lock()
	db.st = work
	db.mu.Unlock()
	return nil
}

type memTx struct {
	db *memDB
	st *memState
}

func (tx *memTx) DecrementStock(_ context.Context, id string, qty int) (product.Product, bool, error) {
	tx.db.reserveOrder = append(tx.db.reserveOrder, id)
	p, ok := tx.st.products[id]
	if !ok || p.Stock < qty {
		return product.Product{}, false, nil
	}
	p.Stock -= qty
	p.Version++
	tx.st.products[id] = p
	return p, true, nil
}

func (tx *memTx) StockLevel(_ context.Context, id string) (int, string, error) {
	p := tx.st.products[id]
	return p.Stock, p.Name, nil
}

func (tx *memTx) LockCart(_ context.Context, userID string) ([]cart.Line, error) {
	return append([]cart.Line(nil), tx.st.carts[userID]...), nil
}

func (tx *memTx) FindByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	if tx.db.hideKeysInTx {
		return nil, ErrNotFound
	}
	return tx.st.findByKey(userID, key)
}

func (tx *memTx) CreateOrder(_ context.Context, o *Order) error {
	if o.IdempotencyKey != "" {
		if _, err := tx.st.findByKey(o.UserID, o.IdempotencyKey); err == nil {
			return ErrDuplicateIdempotencyKey
		}
	}
	tx.st.orders = append(tx.st.orders, *o)
	return nil
}

func (tx *memTx) ReduceCart(_ context.Context, userID string, fulfilled map[string]int) error {
	tx.st.carts[userID] = cart.Reconcile(tx.st.carts[userID], fulfilled)
	return nil
}

type memUsers map[string]user.User

func (m memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]*coupon.Coupon
	used    map[string]int
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) IncrementUsage(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used == nil {
		m.used = map[string]int{}
	}
	m.used[code]++
	return nil
}

type staticDelivery struct {
	cfg delivery.Config
}

func (s *staticDelivery) Get(_ context.Context) (*delivery.Config, error) {
	c := s.cfg
	return &c, nil
}

func (s *staticDelivery) Save(_ context.Context, c *delivery.Config) error {
	s.cfg = *c
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	levels []product.StockLevel
}

func (p *recordingPublisher) Publish(l product.StockLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, l)
}

// syncRunner runs tasks inline and records their outcome.
type syncRunner struct {
	mu     sync.Mutex
	names  []string
	failed []string
}

func (r *syncRunner) Go(name string, fn func(ctx context.Context) error) {
	err := fn(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	if err != nil {
		r.failed = append(r.failed, name)
	}
}

type notifyCall struct {
	kind string
	to   string
	msg  Message
	link string
	body string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) record(c notifyCall) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, c)
	return n.err
}

func (n *recordingNotifier) OrderConfirmation(_ context.Context, to string, msg Message) error {
	return n.record(notifyCall{kind: "confirmation", to: to, msg: msg})
}

func (n *recordingNotifier) AdminNewOrder(_ context.Context, to string, msg Message, link string) error {
	return n.record(notifyCall{kind: "admin", to: to, msg: msg, link: link})
}

func (n *recordingNotifier) AdminSMS(_ context.Context, phone, body string) error {
	return n.record(notifyCall{kind: "sms", to: phone, body: body})
}

var errBoom = errors.New("boom")
