package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/category"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
	"github.com/sakkat/grocery-market/internal/handler"
	"github.com/sakkat/grocery-market/internal/notify"
	"github.com/sakkat/grocery-market/internal/realtime"
	"github.com/sakkat/grocery-market/internal/storage/postgres"
	"github.com/sakkat/grocery-market/internal/tasks"
	"github.com/sakkat/grocery-market/pkg/health"
	"github.com/sakkat/grocery-market/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := newService(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}
	defer svc.close()

	svc.health.Start(ctx, 10*time.Second)
	svc.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	// Stock streams only end when the publisher closes.
	server.RegisterOnShutdown(svc.publisher.Close)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		lg.Info("Waiting for background tasks")
		svc.runner.Wait()
		svc.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// service is the wired application behind the listener.
type service struct {
	handler   http.Handler
	health    *health.Health
	publisher *realtime.Publisher
	runner    *tasks.Runner
	closers   []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService wires repositories, domain services and the HTTP stack over an
// already migrated pool.
func newService(
	ctx context.Context,
	lg *zap.Logger,
	t httpmiddleware.Telemetry,
	cfg *Config,
	pool *pgxpool.Pool,
) (*service, error) {
	keys, err := auth.NewKeys(cfg.JWTSecret)
	if err != nil {
		return nil, errors.Wrap(err, "create token keys")
	}

	svc := &service{
		health:    health.New(),
		publisher: realtime.NewPublisher(cfg.StockDebounce),
		runner:    tasks.NewRunner(lg, cfg.TaskTimeout),
	}
	svc.closers = append(svc.closers, svc.publisher.Close)

	// Health checks.
	svc.health.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	svc.health.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Notifications go to the broker when one is configured.
	var notifier order.Notifier = notify.Log{}
	if cfg.AMQPURL != "" {
		client, err := notify.Dial(lg, cfg.AMQPURL)
		if err != nil {
			svc.close()
			return nil, errors.Wrap(err, "connect amqp")
		}
		svc.closers = append(svc.closers, func() {
			if err := client.Close(); err != nil {
				lg.Warn("Close amqp", zap.Error(err))
			}
		})
		notifier = notify.NewAMQP(client)
		svc.health.AddReadinessCheck("amqp", time.Second, health.ClosedCheck(client.IsClosed))
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	deliveryRepo := postgres.NewDeliveryRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)

	admin := order.Admin{
		Email:     cfg.Admin.Email,
		Phone:     cfg.Admin.Phone,
		PortalURL: cfg.Admin.PortalURL,
	}

	// Domain services.
	recorder := audit.NewRecorder(auditRepo)
	checkout := order.NewCheckout(order.CheckoutDeps{
		Orders:   orderRepo,
		Users:    userRepo,
		Carts:    cartRepo,
		Coupons:  coupon.NewEvaluator(couponRepo),
		Usage:    couponRepo,
		Delivery: deliveryRepo,
		Stock:    svc.publisher,
		Tasks:    svc.runner,
		Notifier: notifier,
		Admin:    admin,
		Timeout:  cfg.CheckoutTimeout,
	})

	h, err := handler.New(handler.Deps{
		Products:   product.NewService(productRepo, svc.publisher, recorder),
		Categories: category.NewService(categoryRepo, recorder),
		Carts:      cart.NewService(cartRepo, productRepo),
		Checkout:   checkout,
		Orders:     order.NewService(orderRepo, userRepo, recorder, svc.runner, notifier, admin),
		Coupons:    coupon.NewService(couponRepo, recorder),
		Delivery:   delivery.NewService(deliveryRepo, recorder),
		Accounts:   auth.NewAccounts(userRepo, keys, cfg.TokenTTL),
		Users:      user.NewService(userRepo),
		Audit:      auditRepo,
		Stream:     svc.publisher,
		Keys:       keys,
		Meter:      t.MeterProvider(),
		KeepAlive:  cfg.StreamKeepAlive,
	})
	if err != nil {
		svc.close()
		return nil, errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", svc.health.LiveEndpoint)
	mux.HandleFunc("/readyz", svc.health.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	svc.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.IdempotencyKeyHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
			Skip:   unlimited,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("grocery-market", t),
		httpmiddleware.RouteContext(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	)
	return svc, nil
}

// unlimited exempts health endpoints and stock streams from rate limiting.
func unlimited(r *http.Request) bool {
	switch {
	case r.URL.Path == "/livez", r.URL.Path == "/readyz":
		return true
	case strings.HasPrefix(r.URL.Path, "/api/realtime/"):
		return true
	}
	return false
}
