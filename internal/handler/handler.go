// Package handler exposes the marketplace over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

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
	"github.com/sakkat/grocery-market/pkg/httpmiddleware"
)

// DefaultKeepAlive is the interval between stock stream keep-alive comments.
const DefaultKeepAlive = 25 * time.Second

// StockStream fans out stock levels to stream connections.
type StockStream interface {
	Subscribe(l realtime.Listener) (unsubscribe func())
	Subscribers() int
	// Done is closed when the stream source shuts down.
	Done() <-chan struct{}
}

// Deps holds the services the handlers delegate to.
type Deps struct {
	Products   *product.Service
	Categories *category.Service
	Carts      *cart.Service
	Checkout   *order.Checkout
	Orders     *order.Service
	Coupons    *coupon.Service
	Delivery   *delivery.Service
	Accounts   *auth.Accounts
	Users      *user.Service
	Audit      audit.Repository
	Stream     StockStream
	Keys       *auth.Keys
	Meter      metric.MeterProvider

	// KeepAlive defaults to DefaultKeepAlive.
	KeepAlive time.Duration
}

// Handler serves the REST API and the stock event stream.
type Handler struct {
	Deps
	outcomes metric.Int64Counter
}

// New creates a Handler.
func New(d Deps) (*Handler, error) {
	if d.Keys == nil {
		return nil, errors.New("auth keys required")
	}
	if d.Meter == nil {
		d.Meter = noop.NewMeterProvider()
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = DefaultKeepAlive
	}
	outcomes, err := d.Meter.Meter("github.com/sakkat/grocery-market/internal/handler").Int64Counter(
		"market.checkout.outcomes",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout counter")
	}
	return &Handler{Deps: d, outcomes: outcomes}, nil
}

// Router returns the API routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/categories", h.listCategories)
		r.Get("/coupons", h.activeCoupons)
		r.Get("/delivery/settings", h.deliverySettings)
		r.Post("/delivery/quote", h.quoteDelivery)
		r.Get("/realtime/stock", h.streamStock)
		r.Get("/realtime/stock/health", h.streamHealth)
		r.Post("/auth/signup", h.signup)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/users/profile", h.profile)
			r.Put("/users/profile", h.updateProfile)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(user.RoleAdmin, user.RoleFarmer))

				r.Post("/products", h.createProduct)
				r.Put("/products/{id}", h.updateProduct)
				r.Delete("/products/{id}", h.deleteProduct)
			})

			r.Get("/cart", h.viewCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Patch("/cart/items/{productId}", h.setCartItem)
			r.Delete("/cart/items/{productId}", h.removeCartItem)

			r.Post("/orders", h.checkout)
			r.Get("/orders", h.orderHistory)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(user.RoleAdmin))

				r.Get("/orders", h.adminListOrders)
				r.Get("/orders/{id}", h.adminGetOrder)
				r.Put("/orders/{id}/status", h.adminUpdateOrderStatus)

				r.Get("/coupons", h.adminListCoupons)
				r.Post("/coupons", h.adminCreateCoupon)
				r.Put("/coupons/{code}", h.adminUpdateCoupon)
				r.Delete("/coupons/{code}", h.adminDeleteCoupon)

				r.Get("/delivery/settings", h.deliverySettings)
				r.Put("/delivery/settings", h.adminUpdateDelivery)

				r.Get("/categories", h.adminListCategories)
				r.Post("/categories", h.adminCreateCategory)
				r.Put("/categories/{id}", h.adminUpdateCategory)
				r.Delete("/categories/{id}", h.adminDeleteCategory)

				r.Patch("/products/{id}/stock", h.adminAdjustStock)
				r.Get("/audit", h.adminListAudit)
			})
		})
	})
	return r
}
