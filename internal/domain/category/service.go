package category

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/sakkat/grocery-market/internal/domain/audit"
)

const (
	entityType = "category"

	defaultPageSize = 50
	maxPageSize     = 100
)

// Service implements the public category listing and admin management.
// Every mutation is audited.
type Service struct {
	repo  Repository
	audit *audit.Recorder
	newID func() string
}

// NewService creates a category Service.
func NewService(repo Repository, rec *audit.Recorder) *Service {
	return &Service{repo: repo, audit: rec, newID: func() string { return uuid.New().String() }}
}

// List returns all categories sorted by name.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	cs, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return cs, nil
}

// Page returns one page of the admin listing. The filter is normalized in
// place so callers can echo the effective page and limit.
func (s *Service) Page(ctx context.Context, f *Filter) ([]Category, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Page = max(f.Page, 1)
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	return s.repo.Page(ctx, *f)
}

// Create adds a category named name.
func (s *Service) Create(ctx context.Context, actor audit.Actor, name string) (*Category, error) {
	c := &Category{ID: s.newID()}
	if err := c.rename(name); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create category")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCategoryCreate,
		EntityType: entityType,
		EntityID:   c.ID,
		After:      c,
	})
	return c, nil
}

// Update renames a category and regenerates its slug.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id, name string) (*Category, error) {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c := *before
	if err := c.rename(name); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &c); err != nil {
		if errors.Is(err, ErrExists) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update category")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCategoryUpdate,
		EntityType: entityType,
		EntityID:   id,
		Before:     before,
		After:      &c,
	})
	return &c, nil
}

// Delete removes a category. Products keep their category label.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id string) error {
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "delete category")
	}
	s.audit.Record(ctx, actor, audit.Change{
		Action:     audit.ActionCategoryDelete,
		EntityType: entityType,
		EntityID:   id,
		Before:     before,
	})
	return nil
}

func (c *Category) rename(name string) error {
	name = strings.TrimSpace(name)
	slug := Slugify(name)
	if slug == "" {
		return ErrInvalidName
	}
	c.Name, c.Slug = name, slug
	return nil
}
