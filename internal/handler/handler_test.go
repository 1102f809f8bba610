package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/category"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
	"github.com/sakkat/grocery-market/internal/realtime"
)

type testEnv struct {
	t      *testing.T
	st     *store
	keys   *auth.Keys
	pub    *realtime.Publisher
	reader *sdkmetric.ManualReader
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newStore()
	st.users["u1"] = user.User{ID: "u1", Name: "Asha", Email: "asha@example.com", Role: user.RoleUser,
		Address: user.Address{Line: "12 Temple Rd", City: "Mysore"}}
	st.users["admin"] = user.User{ID: "admin", Name: "Admin", Role: user.RoleAdmin}
	st.products["rice"] = product.Product{ID: "rice", Name: "Rice", Category: "staples",
		Price: decimal.NewFromInt(50), Stock: 10, Unit: product.Grams(1000), Version: 1}
	st.products["eggs"] = product.Product{ID: "eggs", Name: "Eggs", Category: "dairy",
		Price: decimal.NewFromInt(60), Stock: 1, Unit: product.Pieces(6), Version: 1}

	keys, err := auth.NewKeys("test-secret")
	require.NoError(t, err)
	pub := realtime.NewPublisher(time.Millisecond)
	t.Cleanup(pub.Close)
	reader := sdkmetric.NewManualReader()

	rec := audit.NewRecorder(memAudit{st})
	products := product.NewService(memProducts{st}, pub, rec)
	h, err := New(Deps{
		Products:   products,
		Categories: category.NewService(memCats{st}, rec),
		Carts:      cart.NewService(memCarts{st}, memProducts{st}),
		Checkout:   order.NewCheckout(order.CheckoutDeps{
			Orders:   memOrders{st},
			Users:    memUsers{st},
			Carts:    memCarts{st},
			Coupons:  coupon.NewEvaluator(memCoupons{st}),
			Usage:    memCoupons{st},
			Delivery: memDelivery{st},
			Stock:    pub,
		}),
		Orders:    order.NewService(memOrders{st}, memUsers{st}, rec, nil, nil, order.Admin{}),
		Coupons:   coupon.NewService(memCoupons{st}, rec),
		Delivery:  delivery.NewService(memDelivery{st}, rec),
		Accounts:  auth.NewAccounts(memUsers{st}, keys, time.Hour),
		Users:     user.NewService(memUsers{st}),
		Audit:     memAudit{st},
		Stream:    pub,
		Keys:      keys,
		Meter:     sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		KeepAlive: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	return &testEnv{t: t, st: st, keys: keys, pub: pub, reader: reader, router: h.Router()}
}

func (e *testEnv) token(id string, role user.Role) string {
	e.t.Helper()
	tok, err := e.keys.Issue(auth.Identity{UserID: id, Role: role}, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) asUser(method, path string, body any) *httptest.ResponseRecorder {
	return e.do(method, path, e.token("u1", user.RoleUser), body)
}

func (e *testEnv) asAdmin(method, path string, body any) *httptest.ResponseRecorder {
	return e.do(method, path, e.token("admin", user.RoleAdmin), body)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) outcomes() map[string]int64 {
	e.t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(e.t, e.reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "market.checkout.outcomes" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(e.t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				out[v.AsString()] = dp.Value
			}
		}
	}
	return out
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"message":"missing bearer token"}`, w.Body.String())

	w = e.do(http.MethodGet, "/api/cart", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.asUser(http.MethodGet, "/api/admin/orders", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.asAdmin(http.MethodGet, "/api/admin/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProducts(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]productDTO](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "6 pcs", list[0].UnitLabel)
	assert.Equal(t, "50 for 1 kg", list[1].PriceLabel)

	w = e.do(http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.JSONEq(t, `{"code":404,"message":"not found"}`, w.Body.String())
}

func TestCart(t *testing.T) {
	e := newTestEnv(t)

	w := e.asUser(http.MethodPost, "/api/cart/items", map[string]any{"productId": "rice", "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.asUser(http.MethodPost, "/api/cart/items", map[string]any{"productId": "rice", "quantity": 1})
	view := decodeBody[cartDTO](t, w)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.Equal(t, 150.0, view.Subtotal)

	w = e.asUser(http.MethodPost, "/api/cart/items", map[string]any{"productId": "ghost", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.asUser(http.MethodPatch, "/api/cart/items/rice", map[string]any{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.asUser(http.MethodPatch, "/api/cart/items/rice", map[string]any{"quantity": 0})
	assert.Empty(t, decodeBody[cartDTO](t, w).Items)

	w = e.asUser(http.MethodDelete, "/api/cart", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCheckout_Created(t *testing.T) {
	e := newTestEnv(t)
	e.st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 2}, {ProductID: "eggs", Quantity: 3}}
	lat, lng := 12.3, 76.6

	w := e.asUser(http.MethodPost, "/api/orders", map[string]any{
		"address":        "1 Palace Rd",
		"latitude":       lat,
		"longitude":      lng,
		"idempotencyKey": "k-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decodeBody[checkoutResponse](t, w)
	assert.Equal(t, 100.0, res.Order.SubtotalPrice)
	assert.Equal(t, 100.0, res.Order.TotalPrice)
	assert.Equal(t, "COD", res.Order.PaymentMode)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	require.NotNil(t, res.Order.Location)
	assert.Equal(t, lat, res.Order.Location.Latitude)
	require.Len(t, res.ItemsOutOfStock, 1)
	assert.Equal(t, shortageDTO{ProductID: "eggs", Name: "Eggs", Requested: 3, Available: 1}, res.ItemsOutOfStock[0])
	assert.Equal(t, []cart.Line{{ProductID: "eggs", Quantity: 3}}, e.st.carts["u1"])

	w = e.asUser(http.MethodPost, "/api/orders", map[string]any{"address": "1 Palace Rd", "idempotencyKey": "k-1"})
	require.Equal(t, http.StatusOK, w.Code)
	replay := decodeBody[checkoutResponse](t, w)
	assert.Equal(t, res.Order.ID, replay.Order.ID)
	assert.Empty(t, replay.ItemsOutOfStock)

	assert.Equal(t, map[string]int64{outcomePlaced: 1, outcomeReplayed: 1}, e.outcomes())
}

func TestCheckout_IdempotencyHeader(t *testing.T) {
	e := newTestEnv(t)
	e.st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 1}}

	body := bytes.NewBufferString(`{"address":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
	req.Header.Set("Authorization", "Bearer "+e.token("u1", user.RoleUser))
	req.Header.Set(IdempotencyKeyHeader, "hdr-key")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "hdr-key", decodeBody[checkoutResponse](t, w).Order.IdempotencyKey)
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(st *store)
		body    map[string]any
		status  int
		outcome string
		check   func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		{
			name:    "empty cart",
			status:  http.StatusNotFound,
			outcome: outcomeRejected,
		},
		{
			name:    "all items unavailable",
			setup:   func(st *store) { st.carts["u1"] = []cart.Line{{ProductID: "eggs", Quantity: 2}} },
			status:  http.StatusConflict,
			outcome: outcomeAllUnavailable,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				body := decodeBody[unavailableResponse](t, w)
				require.Len(t, body.ItemsOutOfStock, 1)
				assert.Equal(t, 1, body.ItemsOutOfStock[0].Available)
			},
		},
		{
			name: "minimum order not met",
			setup: func(st *store) {
				st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 1}}
				st.delivery = &delivery.Config{Enabled: true, Mode: delivery.ModeFlat, MinOrderSubtotal: decimal.NewFromInt(51)}
			},
			status:  http.StatusBadRequest,
			outcome: outcomeMinimumOrder,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				body := decodeBody[minimumOrderResponse](t, w)
				assert.Equal(t, 51.0, body.MinOrderSubtotal)
				assert.Equal(t, 50.0, body.Subtotal)
				assert.Equal(t, 1.0, body.Shortfall)
				assert.Empty(t, body.ItemsOutOfStock)
			},
		},
		{
			name: "city not served",
			setup: func(st *store) {
				st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 1}}
				st.delivery = &delivery.Config{Enabled: true, Mode: delivery.ModeCityTiered, Cities: []delivery.City{
					{Name: "Bengaluru", BasePrice: decimal.NewFromInt(30)},
				}}
			},
			status:  http.StatusUnprocessableEntity,
			outcome: outcomeCityUnavailable,
		},
		{
			name:    "unsupported payment mode",
			setup:   func(st *store) { st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 1}} },
			body:    map[string]any{"paymentMode": "CARD"},
			status:  http.StatusBadRequest,
			outcome: outcomeRejected,
		},
		{
			name:    "half a location",
			body:    map[string]any{"latitude": 1.5},
			status:  http.StatusBadRequest,
			outcome: outcomeRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(e.st)
			}
			body := tt.body
			if body == nil {
				body = map[string]any{}
			}
			w := e.asUser(http.MethodPost, "/api/orders", body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.check != nil {
				tt.check(t, w)
			}
			assert.Equal(t, map[string]int64{tt.outcome: 1}, e.outcomes())
			assert.Equal(t, 10, e.st.products["rice"].Stock, "stock must be restored")
		})
	}
}

func TestOrders_HistoryAndAdmin(t *testing.T) {
	e := newTestEnv(t)
	e.st.carts["u1"] = []cart.Line{{ProductID: "rice", Quantity: 1}}
	w := e.asUser(http.MethodPost, "/api/orders", map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody[checkoutResponse](t, w).Order.ID

	w = e.asUser(http.MethodGet, "/api/orders", nil)
	history := decodeBody[[]orderDTO](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, "12 Temple Rd", history[0].Address)

	w = e.asAdmin(http.MethodGet, "/api/admin/orders?status=pending&limit=500", nil)
	page := decodeBody[orderPage](t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, order.MaxPageSize, page.Limit)

	w = e.asAdmin(http.MethodGet, "/api/admin/orders?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.asAdmin(http.MethodGet, "/api/admin/orders?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.asAdmin(http.MethodPut, "/api/admin/orders/"+id+"/status", map[string]any{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.asAdmin(http.MethodPut, "/api/admin/orders/"+id+"/status", map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.StatusConfirmed, decodeBody[orderDTO](t, w).Status)

	w = e.asAdmin(http.MethodGet, "/api/admin/orders/"+id, nil)
	assert.Equal(t, order.StatusConfirmed, decodeBody[orderDTO](t, w).Status)

	w = e.asAdmin(http.MethodGet, "/api/admin/audit?entityType=order", nil)
	entries := decodeBody[[]auditDTO](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionOrderStatusUpdate, entries[0].Action)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(entries[0].After))
}

func TestCoupons(t *testing.T) {
	e := newTestEnv(t)

	w := e.asAdmin(http.MethodPost, "/api/admin/coupons", map[string]any{
		"code": " save10 ", "discountType": "percentage", "discountValue": 10, "maxDiscount": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[couponDTO](t, w)
	assert.Equal(t, "SAVE10", created.Code)
	require.NotNil(t, created.MaxDiscount)
	assert.Equal(t, 5.0, *created.MaxDiscount)
	assert.True(t, created.IsActive)

	w = e.asAdmin(http.MethodPost, "/api/admin/coupons", map[string]any{
		"code": "SAVE10", "discountType": "flat", "discountValue": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.asAdmin(http.MethodPost, "/api/admin/coupons", map[string]any{
		"code": "BAD", "discountType": "bogus", "discountValue": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.asAdmin(http.MethodPut, "/api/admin/coupons/save10", map[string]any{
		"discountType": "amount", "discountValue": "25", "isActive": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "flat", decodeBody[couponDTO](t, w).DiscountType)

	w = e.do(http.MethodGet, "/api/coupons", "", nil)
	assert.Empty(t, decodeBody[[]couponDTO](t, w))

	w = e.asAdmin(http.MethodGet, "/api/admin/coupons?active=false", nil)
	assert.Equal(t, 1, decodeBody[couponPage](t, w).Total)
	w = e.asAdmin(http.MethodGet, "/api/admin/coupons?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.asAdmin(http.MethodDelete, "/api/admin/coupons/SAVE10", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.asAdmin(http.MethodDelete, "/api/admin/coupons/SAVE10", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.asAdmin(http.MethodGet, "/api/admin/audit?entityType=coupon", nil)
	assert.Len(t, decodeBody[[]auditDTO](t, w), 3)
}

func TestDelivery(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/delivery/settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, delivery.ModeFlat, decodeBody[deliveryDTO](t, w).Mode)

	w = e.asAdmin(http.MethodPut, "/api/admin/delivery/settings", map[string]any{
		"mode": "city_tiered",
		"cities": []map[string]any{
			{"name": "Mysore", "basePrice": 20, "pricePerKg": 10, "freeDeliveryThreshold": 500},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	settings := decodeBody[deliveryDTO](t, w)
	assert.True(t, settings.Enabled)
	require.Len(t, settings.Cities, 1)
	assert.Equal(t, 20.0, settings.Cities[0].BasePrice)

	w = e.asAdmin(http.MethodPut, "/api/admin/delivery/settings", map[string]any{"mode": "city_tiered"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/delivery/quote", "", map[string]any{
		"city": "mysore", "totalWeightKg": 2.5, "orderSubtotal": 200,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, quoteResponse{DeliveryFee: 40}, decodeBody[quoteResponse](t, w))

	w = e.do(http.MethodPost, "/api/delivery/quote", "", map[string]any{
		"city": "Mysore", "totalWeightKg": 2.5, "orderSubtotal": 500,
	})
	assert.Equal(t, quoteResponse{DeliveryFee: 0, IsFree: true}, decodeBody[quoteResponse](t, w))

	w = e.do(http.MethodPost, "/api/delivery/quote", "", map[string]any{"city": "Goa", "orderSubtotal": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.asUser(http.MethodPut, "/api/admin/delivery/settings", map[string]any{"mode": "flat"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminAdjustStock(t *testing.T) {
	e := newTestEnv(t)
	got := make(chan product.StockLevel, 1)
	unsubscribe := e.pub.Subscribe(func(l product.StockLevel) { got <- l })
	defer unsubscribe()

	w := e.asAdmin(http.MethodPatch, "/api/admin/products/rice/stock", map[string]any{"delta": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 15, decodeBody[productDTO](t, w).Stock)

	select {
	case l := <-got:
		assert.Equal(t, 15, l.Stock)
	case <-time.After(time.Second):
		t.Fatal("no stock event")
	}

	w = e.asAdmin(http.MethodPatch, "/api/admin/products/rice/stock", map[string]any{"delta": -100})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.asAdmin(http.MethodPatch, "/api/admin/products/rice/stock", map[string]any{"delta": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupLogin(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Ravi", "email": "Ravi@Example.com", "password": "secret1",
		"phone": "+919000000004", "address": "7 Park Ln", "latitude": 12.3, "longitude": 76.6,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[userDTO](t, w)
	assert.Equal(t, "ravi@example.com", created.Email)
	assert.Equal(t, user.RoleUser, created.Role)
	assert.Equal(t, user.DefaultCity, created.City)

	w = e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Ravi", "email": "ravi@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Ravi", "email": "ravi2@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ravi@example.com", "password": "nope12"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "asha@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "provisioned accounts have no password")

	w = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "RAVI@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decodeBody[sessionDTO](t, w)
	assert.Equal(t, created.ID, session.User.ID)

	w = e.do(http.MethodGet, "/api/users/profile", session.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeBody[userDTO](t, w)
	assert.Equal(t, "7 Park Ln", profile.Address)
	require.NotNil(t, profile.Latitude)
	assert.Equal(t, 12.3, *profile.Latitude)
}

func TestProfile(t *testing.T) {
	e := newTestEnv(t)

	w := e.asUser(http.MethodGet, "/api/users/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12 Temple Rd", decodeBody[userDTO](t, w).Address)

	w = e.asUser(http.MethodPut, "/api/users/profile", map[string]any{
		"address": "5 Palace Rd", "city": "Mandya", "latitude": 12.5, "longitude": 76.9,
		"email": "ignored@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[userDTO](t, w)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, "asha@example.com", got.Email)
	assert.Equal(t, "Mandya", got.City)
	assert.Equal(t, "5 Palace Rd", e.st.users["u1"].Address.Line)

	w = e.asUser(http.MethodPut, "/api/users/profile", map[string]any{"latitude": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodGet, "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCategories(t *testing.T) {
	e := newTestEnv(t)

	w := e.asAdmin(http.MethodPost, "/api/admin/categories", map[string]any{"name": "Dairy & Eggs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dairy := decodeBody[categoryDTO](t, w)
	assert.Equal(t, "dairy-eggs", dairy.Slug)

	w = e.asAdmin(http.MethodPost, "/api/admin/categories", map[string]any{"name": "Vegetables"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.asAdmin(http.MethodPost, "/api/admin/categories", map[string]any{"name": "dairy eggs"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.asAdmin(http.MethodPost, "/api/admin/categories", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.asUser(http.MethodPost, "/api/admin/categories", map[string]any{"name": "Snacks"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.asAdmin(http.MethodPut, "/api/admin/categories/"+dairy.ID, map[string]any{"name": "Dairy"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dairy", decodeBody[categoryDTO](t, w).Slug)
	w = e.asAdmin(http.MethodPut, "/api/admin/categories/nope", map[string]any{"name": "Fruit"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]categoryDTO](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "Dairy", list[0].Name)

	w = e.asAdmin(http.MethodGet, "/api/admin/categories?q=veg&limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody[categoryPage](t, w)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 1, page.Page)

	w = e.asAdmin(http.MethodDelete, "/api/admin/categories/"+dairy.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.asAdmin(http.MethodDelete, "/api/admin/categories/"+dairy.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductManagement(t *testing.T) {
	e := newTestEnv(t)
	farmer := e.token("f1", user.RoleFarmer)
	body := map[string]any{
		"name": "Mango", "category": "fruits", "price": "120", "stock": 6,
		"unit": map[string]any{"kind": "pieces", "count": 3},
	}

	w := e.asUser(http.MethodPost, "/api/products", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodPost, "/api/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/products", farmer, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	mango := decodeBody[productDTO](t, w)
	assert.Equal(t, "f1", mango.OwnerID)
	assert.Equal(t, "3 pcs", mango.UnitLabel)

	body["stock"] = 2
	w = e.do(http.MethodPut, "/api/products/"+mango.ID, farmer, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, decodeBody[productDTO](t, w).Stock)

	w = e.do(http.MethodPut, "/api/products/rice", farmer, body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodDelete, "/api/products/rice", farmer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body["price"] = 0
	w = e.do(http.MethodPost, "/api/products", farmer, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body["price"] = 10
	body["unit"] = map[string]any{"kind": "litres", "count": 1}
	w = e.do(http.MethodPost, "/api/products", farmer, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.asAdmin(http.MethodDelete, "/api/products/"+mango.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/products/"+mango.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var actions []string
	for _, entry := range e.st.audit {
		actions = append(actions, entry.Action)
	}
	assert.Equal(t, []string{audit.ActionProductCreate, audit.ActionProductUpdate, audit.ActionProductDelete}, actions)
}
