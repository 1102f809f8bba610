package main

import (
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/coupon"
)

const (
	minCodeLen = 4
	maxCodeLen = 32
)

// rule is the discount applied to codes listed without one.
type rule struct {
	discountType  coupon.DiscountType
	value         decimal.Decimal
	minOrderValue decimal.Decimal
}

// parseLine reads "CODE[,type,value[,minOrderValue]]". Blank lines and
// lines starting with # yield ok=false and no error.
func parseLine(line string, def rule) (c coupon.Coupon, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return coupon.Coupon{}, false, nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	code := coupon.NormalizeCode(fields[0])
	if n := len(code); n < minCodeLen || n > maxCodeLen {
		return coupon.Coupon{}, false, errors.Errorf("code %q: length must be %d-%d", fields[0], minCodeLen, maxCodeLen)
	}
	c = coupon.Coupon{
		Code:          code,
		DiscountType:  def.discountType,
		DiscountValue: def.value,
		MinOrderValue: def.minOrderValue,
		IsActive:      true,
	}

	switch len(fields) {
	case 1:
	case 3, 4:
		if c.DiscountType, err = coupon.ParseDiscountType(fields[1]); err != nil {
			return coupon.Coupon{}, false, errors.Wrapf(err, "code %s", code)
		}
		if c.DiscountValue, err = decimal.NewFromString(fields[2]); err != nil {
			return coupon.Coupon{}, false, errors.Wrapf(err, "code %s: value", code)
		}
		if len(fields) == 4 {
			if c.MinOrderValue, err = decimal.NewFromString(fields[3]); err != nil {
				return coupon.Coupon{}, false, errors.Wrapf(err, "code %s: min order value", code)
			}
		}
	default:
		return coupon.Coupon{}, false, errors.Errorf("code %s: expected 1, 3 or 4 fields, got %d", code, len(fields))
	}

	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, false, errors.Wrapf(err, "code %s", code)
	}
	return c, true, nil
}

// dedupe remembers codes seen across all input files. The bloom filter
// answers most first sightings without touching the exact set.
type dedupe struct {
	filter *bloom.BloomFilter
	seen   map[string]struct{}
}

func newDedupe(capacity uint, fpRate float64) *dedupe {
	return &dedupe{
		filter: bloom.NewWithEstimates(capacity, fpRate),
		seen:   make(map[string]struct{}),
	}
}

// first reports whether code is seen for the first time. Not safe for
// concurrent use.
func (d *dedupe) first(code string) bool {
	if d.filter.TestAndAddString(code) {
		if _, dup := d.seen[code]; dup {
			return false
		}
	}
	d.seen[code] = struct{}{}
	return true
}
