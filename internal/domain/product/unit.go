package product

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// UnitKind tags the variant held by a Unit.
type UnitKind string

const (
	UnitNone   UnitKind = ""
	UnitGrams  UnitKind = "g"
	UnitPieces UnitKind = "pieces"
)

// Unit describes what the price of a product buys: a weight in grams, a piece
// count, or nothing at all. A product never carries both.
type Unit struct {
	kind  UnitKind
	count int
}

// Grams returns a weight unit. Non-positive weights collapse to None.
func Grams(n int) Unit {
	if n <= 0 {
		return Unit{}
	}
	return Unit{kind: UnitGrams, count: n}
}

// Pieces returns a piece-count unit. Non-positive counts collapse to None.
func Pieces(n int) Unit {
	if n <= 0 {
		return Unit{}
	}
	return Unit{kind: UnitPieces, count: n}
}

// UnitFrom rebuilds a Unit from its stored kind and count.
func UnitFrom(kind UnitKind, count int) (Unit, error) {
	switch kind {
	case UnitNone:
		return Unit{}, nil
	case UnitGrams:
		return Grams(count), nil
	case UnitPieces:
		return Pieces(count), nil
	default:
		return Unit{}, fmt.Errorf("unknown unit kind %q", kind)
	}
}

// Kind returns the variant tag.
func (u Unit) Kind() UnitKind { return u.kind }

// Count returns grams or pieces depending on the kind, and zero for None.
func (u Unit) Count() int { return u.count }

// IsZero reports whether the unit is None.
func (u Unit) IsZero() bool { return u.kind == UnitNone }

// WeightKg returns the shipping weight of one unit. Piece-counted and
// unit-less products weigh nothing for delivery pricing.
func (u Unit) WeightKg() decimal.Decimal {
	if u.kind != UnitGrams {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(u.count)).Div(decimal.NewFromInt(1000))
}

// Label renders the unit for display, e.g. "500 g", "1.5 kg" or "6 pcs".
func (u Unit) Label() string {
	switch u.kind {
	case UnitGrams:
		if u.count >= 1000 {
			kg := decimal.NewFromInt(int64(u.count)).Div(decimal.NewFromInt(1000)).Round(2)
			return kg.String() + " kg"
		}
		return strconv.Itoa(u.count) + " g"
	case UnitPieces:
		return strconv.Itoa(u.count) + " pcs"
	default:
		return ""
	}
}

// PriceLabel renders "<price> for <unit>", or "" when the unit is None.
func (u Unit) PriceLabel(price decimal.Decimal) string {
	label := u.Label()
	if label == "" {
		return ""
	}
	return price.String() + " for " + label
}
