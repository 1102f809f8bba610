// Package delivery prices order delivery from the store's delivery settings.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfig wraps every delivery settings validation failure.
var ErrInvalidConfig = errors.New("invalid delivery config")

// Mode selects the pricing policy. A deployment uses exactly one.
type Mode string

const (
	ModeFlat       Mode = "flat"
	ModeCityTiered Mode = "city_tiered"
)

// CityUnavailableError is returned when city-tiered pricing has no entry
// for the requested city.
type CityUnavailableError struct {
	City string
}

func (e *CityUnavailableError) Error() string {
	if e.City == "" {
		return "delivery city not specified"
	}
	return fmt.Sprintf("delivery not available for city %q", e.City)
}

// City is the tariff for one serviced city.
type City struct {
	Name                  string          `json:"name"`
	BasePrice             decimal.Decimal `json:"basePrice"`
	PricePerKg            decimal.Decimal `json:"pricePerKg"`
	FreeDeliveryThreshold decimal.Decimal `json:"freeDeliveryThreshold"`
}

// Config is the singleton delivery settings record.
type Config struct {
	Enabled          bool
	Mode             Mode
	MinOrderSubtotal decimal.Decimal
	// Flat mode.
	FlatFee           decimal.Decimal
	FlatFreeThreshold decimal.Decimal
	// City-tiered mode.
	Cities    []City
	UpdatedAt time.Time
}

// Default is used when no settings were ever saved.
func Default() Config {
	return Config{Enabled: true, Mode: ModeFlat}
}

// Quote is the computed delivery charge for one order.
type Quote struct {
	Fee  decimal.Decimal
	Free bool
}

func invalid(format string, args ...any) error {
	return errors.Wrap(ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks that c describes exactly one pricing policy.
func (c *Config) Validate() error {
	if c.MinOrderSubtotal.IsNegative() {
		return invalid("minOrderSubtotal must not be negative")
	}
	switch c.Mode {
	case ModeFlat:
		if len(c.Cities) > 0 {
			return invalid("flat mode must not list cities")
		}
		if c.FlatFee.IsNegative() || c.FlatFreeThreshold.IsNegative() {
			return invalid("flat fee and threshold must not be negative")
		}
	case ModeCityTiered:
		if len(c.Cities) == 0 {
			return invalid("city_tiered mode requires at least one city")
		}
		seen := make(map[string]struct{}, len(c.Cities))
		for i, city := range c.Cities {
			key := normalizeCity(city.Name)
			if key == "" {
				return invalid("city %d: name required", i)
			}
			if _, dup := seen[key]; dup {
				return invalid("city %q listed twice", city.Name)
			}
			seen[key] = struct{}{}
			if city.BasePrice.IsNegative() || city.PricePerKg.IsNegative() || city.FreeDeliveryThreshold.IsNegative() {
				return invalid("city %q: prices must not be negative", city.Name)
			}
		}
	default:
		return invalid("unknown mode %q", c.Mode)
	}
	return nil
}

// Quote prices delivery of an order weighing weightKg into city, where
// subtotal is the order value after discounts.
func (c *Config) Quote(city string, weightKg, subtotal decimal.Decimal) (Quote, error) {
	if !c.Enabled {
		return Quote{Fee: decimal.Zero}, nil
	}
	switch c.Mode {
	case ModeCityTiered:
		tariff, ok := c.city(city)
		if !ok {
			return Quote{}, &CityUnavailableError{City: strings.TrimSpace(city)}
		}
		return tariff.quote(weightKg, subtotal), nil
	default:
		if c.FlatFreeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(c.FlatFreeThreshold) {
			return Quote{Fee: decimal.Zero, Free: true}, nil
		}
		return Quote{Fee: c.FlatFee.Round(2)}, nil
	}
}

func (c *Config) city(name string) (City, bool) {
	key := normalizeCity(name)
	if key == "" {
		return City{}, false
	}
	for _, city := range c.Cities {
		if normalizeCity(city.Name) == key {
			return city, true
		}
	}
	return City{}, false
}

var one = decimal.NewFromInt(1)

// quote charges the base price for the first kilogram and pricePerKg for
// every started kilogram after it.
func (c City) quote(weightKg, subtotal decimal.Decimal) Quote {
	if c.FreeDeliveryThreshold.IsPositive() && subtotal.GreaterThanOrEqual(c.FreeDeliveryThreshold) {
		return Quote{Fee: decimal.Zero, Free: true}
	}
	fee := c.BasePrice
	if weightKg.GreaterThan(one) {
		extra := weightKg.Sub(one).Ceil()
		fee = fee.Add(extra.Mul(c.PricePerKg))
	}
	return Quote{Fee: fee.Round(2)}
}

func normalizeCity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Repository loads and stores the delivery settings singleton.
type Repository interface {
	// Get returns the stored settings, or Default when none were saved.
	Get(ctx context.Context) (*Config, error)
	Save(ctx context.Context, c *Config) error
}
