package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
	"github.com/sakkat/grocery-market/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Grams    int             `json:"grams"`
	Pieces   int             `json:"pieces"`
}

func (p productJSON) product() product.Product {
	unit := product.Grams(p.Grams)
	if p.Pieces > 0 {
		unit = product.Pieces(p.Pieces)
	}
	return product.Product{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		Stock:    p.Stock,
		Unit:     unit,
	}
}

type options struct {
	databaseURL  string
	productsFile string
	jwtSecret    string
	tokenTTL     time.Duration
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret used to print dev tokens (or MARKET_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 7*24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = firstEnv("MARKET_DATABASE_URL", "DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("MARKET_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedDelivery(ctx, postgres.NewDeliveryRepository(pool)); err != nil {
		return errors.Wrap(err, "seed delivery settings")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	users, err := seedUsers(ctx, postgres.NewUserRepository(pool))
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if opts.jwtSecret == "" {
		slog.Info("no JWT secret given, skipping dev tokens")
		return nil
	}
	return printTokens(opts.jwtSecret, opts.tokenTTL, users)
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if p.Grams > 0 && p.Pieces > 0 {
			return errors.Errorf("product %s: grams and pieces are exclusive", p.ID)
		}
		if err := repo.Upsert(ctx, p.product()); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedDelivery(ctx context.Context, repo *postgres.DeliveryRepository) error {
	cfg := &delivery.Config{
		Enabled:          true,
		Mode:             delivery.ModeCityTiered,
		MinOrderSubtotal: decimal.NewFromInt(99),
		Cities: []delivery.City{
			{Name: "Mysore", BasePrice: decimal.NewFromInt(30), PricePerKg: decimal.NewFromInt(10), FreeDeliveryThreshold: decimal.NewFromInt(499)},
			{Name: "Bengaluru", BasePrice: decimal.NewFromInt(50), PricePerKg: decimal.NewFromInt(15), FreeDeliveryThreshold: decimal.NewFromInt(799)},
			{Name: "Mandya", BasePrice: decimal.NewFromInt(40), PricePerKg: decimal.NewFromInt(12), FreeDeliveryThreshold: decimal.NewFromInt(599)},
		},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := repo.Save(ctx, cfg); err != nil {
		return errors.Wrap(err, "save delivery settings")
	}
	slog.Info("saved delivery settings", slog.String("mode", string(cfg.Mode)), slog.Int("cities", len(cfg.Cities)))
	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding coupons")

	capped := decimal.NewNullDecimal(decimal.NewFromInt(100))
	coupons := []coupon.Coupon{
		{
			Code:          "WELCOME10",
			Description:   "10% off your first basket, up to 100",
			DiscountType:  coupon.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			MaxDiscount:   capped,
			IsActive:      true,
		},
		{
			Code:          "FRESH50",
			Description:   "50 off orders above 500",
			DiscountType:  coupon.DiscountFlat,
			DiscountValue: decimal.NewFromInt(50),
			MinOrderValue: decimal.NewFromInt(500),
			IsActive:      true,
		},
	}

	for _, c := range coupons {
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		err := repo.Create(ctx, &c)
		switch {
		case errors.Is(err, coupon.ErrCodeTaken):
			slog.Info("coupon exists", slog.String("code", c.Code))
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", c.Code)
		default:
			slog.Info("created coupon", slog.String("code", c.Code), slog.String("description", c.Description))
		}
	}

	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository) ([]user.User, error) {
	lat, lng := 12.2958, 76.6394
	users := []user.User{
		{
			ID:    "admin",
			Name:  "Store Admin",
			Email: "admin@grocery.local",
			Role:  user.RoleAdmin,
		},
		{
			ID:    "demo-customer",
			Name:  "Demo Customer",
			Email: "customer@grocery.local",
			Phone: "+919000000001",
			Role:  user.RoleUser,
			Address: user.Address{
				Line:      "12 Sayyaji Rao Road",
				City:      user.DefaultCity,
				Latitude:  &lat,
				Longitude: &lng,
			},
		},
		{
			ID:    "demo-farmer",
			Name:  "Demo Farmer",
			Email: "farmer@grocery.local",
			Role:  user.RoleFarmer,
			Address: user.Address{
				City: "Mandya",
			},
		},
	}

	for _, u := range users {
		if err := repo.Upsert(ctx, u); err != nil {
			return nil, errors.Wrapf(err, "upsert user %s", u.ID)
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("role", string(u.Role)))
	}
	return users, nil
}

func printTokens(secret string, ttl time.Duration, users []user.User) error {
	keys, err := auth.NewKeys(secret)
	if err != nil {
		return errors.Wrap(err, "create token keys")
	}
	for _, u := range users {
		token, err := keys.Issue(auth.Identity{UserID: u.ID, Role: u.Role, Email: u.Email}, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.ID)
		}
		fmt.Printf("%s (%s): Bearer %s\n", u.ID, u.Role, token)
	}
	return nil
}
