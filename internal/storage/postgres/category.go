package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/category"
)

const categoryColumns = `id, name, slug, created_at, updated_at`

const (
	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name`

	getCategorySQL = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	createCategorySQL = `INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	updateCategorySQL = `UPDATE categories SET name = $2, slug = $3, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns every category ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// Page returns one page of categories whose name or slug matches f.Query.
func (r *CategoryRepository) Page(ctx context.Context, f category.Filter) ([]category.Category, int, error) {
	where := sq.And{}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		where = append(where, sq.Or{sq.ILike{"name": like}, sq.ILike{"slug": like}})
	}

	countSQL, countArgs, err := psql.Select("count(*)").From("categories").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building category count query: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting categories: %w", err)
	}

	query, args, err := psql.Select(categoryColumns).From("categories").Where(where).
		OrderBy("created_at DESC", "name").
		Limit(uint64(f.Limit)).
		Offset(uint64((f.Page - 1) * f.Limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building category list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing categories: %w", err)
	}
	cs, err := pgx.CollectRows(rows, scanCategory)
	if err != nil {
		return nil, 0, fmt.Errorf("listing categories: %w", err)
	}
	return cs, total, nil
}

// GetByID returns a category by id.
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", id, err)
	}
	return &c, nil
}

// Create inserts a category.
func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, createCategorySQL, c.ID, c.Name, c.Slug).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isCategoryConflict(err) {
			return category.ErrExists
		}
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// Update renames a category.
func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	err := r.pool.QueryRow(ctx, updateCategorySQL, c.ID, c.Name, c.Slug).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return category.ErrNotFound
		case isCategoryConflict(err):
			return category.ErrExists
		}
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	return nil
}

// Delete removes a category.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

func isCategoryConflict(err error) bool {
	return isUniqueViolation(err, "categories_name_key") || isUniqueViolation(err, "categories_slug_key")
}

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
