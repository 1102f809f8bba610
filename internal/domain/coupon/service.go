package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/sakkat/grocery-market/internal/domain/audit"
)

const entityType = "coupon"

// Service implements admin coupon management. Every mutation is audited.
type Service struct {
	repo  Repository
	audit *audit.Recorder
	now   func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository, rec *audit.Recorder) *Service {
	return &Service{repo: repo, audit: rec, now: time.Now}
}

// Create stores a new coupon. Usage starts at zero.
func (s *Service) Create(ctx context.Context, actor audit.Actor, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	c.UsageCount = 0
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCouponCreate,
		EntityType: entityType,
		EntityID:   c.Code,
		After:      c,
	})
	return nil
}

// Update replaces the definition of the coupon identified by code. The
// usage counter is preserved.
func (s *Service) Update(ctx context.Context, actor audit.Actor, code string, c *Coupon) error {
	code = NormalizeCode(code)
	before, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	c.Code = code
	c.UsageCount = before.UsageCount
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return errors.Wrap(err, "update coupon")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCouponUpdate,
		EntityType: entityType,
		EntityID:   code,
		Before:     before,
		After:      c,
	})
	return nil
}

// Delete removes a coupon.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, code string) error {
	code = NormalizeCode(code)
	before, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCouponDelete,
		EntityType: entityType,
		EntityID:   code,
		Before:     before,
	})
	return nil
}

// List returns one page of coupons and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Coupon, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.repo.List(ctx, f)
}

// Active returns coupons that are currently usable, for the public listing.
func (s *Service) Active(ctx context.Context) ([]Coupon, error) {
	return s.repo.ListActive(ctx, s.now())
}
