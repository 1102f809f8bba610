package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

const entityType = "product"

// Publisher receives committed stock levels.
type Publisher interface {
	Publish(level StockLevel)
}

// Service implements catalog reads, product management by admins and
// farmers, and admin stock adjustments.
type Service struct {
	repo      Repository
	publisher Publisher
	audit     *audit.Recorder
	newID     func() string
}

// NewService creates a product Service.
func NewService(repo Repository, publisher Publisher, rec *audit.Recorder) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		audit:     rec,
		newID:     func() string { return uuid.New().String() },
	}
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// StockSnapshot returns the stock levels of the given products. Unknown ids
// are omitted.
func (s *Service) StockSnapshot(ctx context.Context, ids []string) ([]StockLevel, error) {
	products, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	levels := make([]StockLevel, len(products))
	for i, p := range products {
		levels[i] = p.Level()
	}
	return levels, nil
}

// AdjustStock adds delta to the stock of a product and broadcasts the new level.
func (s *Service) AdjustStock(ctx context.Context, actor audit.Actor, id string, delta int) (*Product, error) {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, err
	}
	s.publish(p.Level())
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionStockAdjust,
		EntityType: entityType,
		EntityID:   id,
		Before:     map[string]int{"stock": before.Stock},
		After:      map[string]int{"stock": p.Stock},
		Meta:       map[string]any{"delta": delta},
	})
	return p, nil
}

// Create lists a new product. Products created by farmers are owned by them.
func (s *Service) Create(ctx context.Context, actor audit.Actor, d Draft) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p := &Product{ID: s.newID()}
	p.apply(d)
	if actor.Role == string(user.RoleFarmer) {
		p.OwnerID = actor.ID
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	s.publish(p.Level())
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionProductCreate,
		EntityType: entityType,
		EntityID:   p.ID,
		After:      p,
	})
	return p, nil
}

// Update replaces the editable fields of a product. Farmers may only edit
// their own products; ownership never changes.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id string, d Draft) (*Product, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	before, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	p := *before
	p.apply(d)
	if err := s.repo.Update(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	s.publish(p.Level())
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionProductUpdate,
		EntityType: entityType,
		EntityID:   id,
		Before:     before,
		After:      &p,
	})
	return &p, nil
}

// Delete removes a product from the catalog. Open stock streams see it go
// out of stock.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id string) error {
	before, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.publish(StockLevel{ProductID: id, Version: before.Version + 1, UpdatedAt: time.Now()})
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionProductDelete,
		EntityType: entityType,
		EntityID:   id,
		Before:     before,
	})
	return nil
}

// owned loads a product the actor may edit.
func (s *Service) owned(ctx context.Context, actor audit.Actor, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != string(user.RoleAdmin) && p.OwnerID != actor.ID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) publish(level StockLevel) {
	if s.publisher != nil {
		s.publisher.Publish(level)
	}
}

func (p *Product) apply(d Draft) {
	p.Name = strings.TrimSpace(d.Name)
	p.Category = strings.TrimSpace(d.Category)
	p.Price = d.Price.Round(2)
	p.Stock = d.Stock
	p.Unit = d.Unit
}
