package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (MARKET_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string        `env:"DATABASE_URL" usage:"PostgreSQL connection URL (MARKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret       string        `env:"JWT_SECRET" usage:"HMAC secret for bearer tokens" flag:"jwt-secret"`
	TokenTTL        time.Duration `default:"1h" usage:"Lifetime of tokens issued at login" flag:"token-ttl"`
	AMQPURL         string        `env:"AMQP_URL" usage:"RabbitMQ URL for notifications; empty logs them instead" flag:"amqp-url"`
	CheckoutTimeout time.Duration `default:"5s" usage:"Checkout transaction bound" flag:"checkout-timeout"`
	StockDebounce   time.Duration `default:"50ms" usage:"Per-product stock event coalescing window" flag:"stock-debounce"`
	StreamKeepAlive time.Duration `default:"25s" usage:"Stock stream keep-alive interval" flag:"stream-keep-alive"`
	TaskTimeout     time.Duration `default:"30s" usage:"Timeout of each post-commit task" flag:"task-timeout"`
	Admin           AdminConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// AdminConfig holds the admin notification targets.
type AdminConfig struct {
	Email     string `usage:"Admin email for new order notifications"`
	Phone     string `usage:"Admin phone for SMS alerts"`
	PortalURL string `usage:"Admin portal base URL linked from SMS alerts" flag:"admin-portal-url"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a local .env file when present, then configuration from
// environment variables, flags and YAML config files.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "MARKET",
		Files:     []string{"config.yaml", "/etc/market/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(src aconfig.Config) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	if err := aconfig.LoaderFor(&cfg, src).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set MARKET_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("JWT secret is required: set MARKET_JWT_SECRET")
	case c.CheckoutTimeout <= 0:
		return errors.New("checkout timeout must be positive")
	case c.StreamKeepAlive <= 0:
		return errors.New("stream keep-alive must be positive")
	case c.TokenTTL <= 0:
		return errors.New("token TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's MARKET_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
