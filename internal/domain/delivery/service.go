package delivery

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/audit"
)

// Service exposes delivery settings to admins and quotes to customers.
type Service struct {
	repo  Repository
	audit *audit.Recorder
}

// NewService creates a delivery Service.
func NewService(repo Repository, rec *audit.Recorder) *Service {
	return &Service{repo: repo, audit: rec}
}

// Settings returns the active delivery settings.
func (s *Service) Settings(ctx context.Context) (*Config, error) {
	c, err := s.repo.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get delivery config")
	}
	return c, nil
}

// Update validates and replaces the delivery settings.
func (s *Service) Update(ctx context.Context, actor audit.Actor, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	before, err := s.repo.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "get delivery config")
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save delivery config")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionDeliverySettingsUpdate,
		EntityType: "delivery_config",
		EntityID:   "singleton",
		Before:     before,
		After:      c,
	})
	return nil
}

// Quote prices a hypothetical order.
func (s *Service) Quote(ctx context.Context, city string, weightKg, subtotal decimal.Decimal) (Quote, error) {
	c, err := s.Settings(ctx)
	if err != nil {
		return Quote{}, err
	}
	return c.Quote(city, weightKg, subtotal)
}
