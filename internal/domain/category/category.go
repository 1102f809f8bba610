// Package category manages the product categories shown in the storefront.
package category

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrExists is returned when a name or slug is already used.
	ErrExists = errors.New("category already exists")
	// ErrInvalidName is returned for names that are blank or have no slug.
	ErrInvalidName = errors.New("category name must contain a letter or digit")
)

// Category is a storefront section. Slug is derived from Name.
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows the admin listing.
type Filter struct {
	Query string
	Page  int
	Limit int
}

// Repository persists categories.
type Repository interface {
	// List returns every category ordered by name.
	List(ctx context.Context) ([]Category, error)
	// Page returns one page of categories matching f and the total count.
	Page(ctx context.Context, f Filter) ([]Category, int, error)
	GetByID(ctx context.Context, id string) (*Category, error)
	// Create and Update return ErrExists on a duplicate name or slug.
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) error
}

// Slugify lower-cases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
