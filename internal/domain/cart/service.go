package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/product"
)

// Catalog resolves the products referenced by cart lines.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// Service implements cart operations for a single user.
type Service struct {
	carts    Repository
	products Catalog
}

// NewService creates a cart Service.
func NewService(carts Repository, products Catalog) *Service {
	return &Service{carts: carts, products: products}
}

// View returns the cart with current product data. Lines pointing at
// products that no longer exist are skipped.
func (s *Service) View(ctx context.Context, userID string) (*View, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	v := &View{Items: make([]Item, 0, len(lines)), Subtotal: decimal.Zero}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		item := Item{Product: p, Quantity: l.Quantity}
		v.Items = append(v.Items, item)
		v.Subtotal = v.Subtotal.Add(item.LineTotal())
	}
	v.Subtotal = v.Subtotal.Round(2)
	return v, nil
}

// Add puts qty units of a product into the cart, incrementing an existing line.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*View, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.carts.Add(ctx, userID, productID, qty); err != nil {
		return nil, fmt.Errorf("add cart line: %w", err)
	}
	return s.View(ctx, userID)
}

// SetQuantity overwrites the quantity of a line. Zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) (*View, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty > 0 {
		if _, err := s.products.GetByID(ctx, productID); err != nil {
			return nil, err
		}
	}
	if err := s.carts.Set(ctx, userID, productID, qty); err != nil {
		return nil, fmt.Errorf("set cart line: %w", err)
	}
	return s.View(ctx, userID)
}

// Remove deletes a line from the cart.
func (s *Service) Remove(ctx context.Context, userID, productID string) (*View, error) {
	if err := s.carts.Remove(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("remove cart line: %w", err)
	}
	return s.View(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
