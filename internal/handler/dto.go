package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sakkat/grocery-market/internal/domain/audit"
	"github.com/sakkat/grocery-market/internal/domain/cart"
	"github.com/sakkat/grocery-market/internal/domain/category"
	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/domain/delivery"
	"github.com/sakkat/grocery-market/internal/domain/inventory"
	"github.com/sakkat/grocery-market/internal/domain/order"
	"github.com/sakkat/grocery-market/internal/domain/product"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

type unitDTO struct {
	Kind  product.UnitKind `json:"kind"`
	Count int              `json:"count"`
}

type productDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Price      float64   `json:"price"`
	Stock      int       `json:"stock"`
	Unit       *unitDTO  `json:"unit,omitempty"`
	UnitLabel  string    `json:"unitLabel,omitempty"`
	PriceLabel string    `json:"priceLabel,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newProductDTO(p product.Product) productDTO {
	dto := productDTO{
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Price:      money(p.Price),
		Stock:      p.Stock,
		UnitLabel:  p.Unit.Label(),
		PriceLabel: p.Unit.PriceLabel(p.Price),
		OwnerID:    p.OwnerID,
		Version:    p.Version,
		UpdatedAt:  p.UpdatedAt,
	}
	if !p.Unit.IsZero() {
		dto.Unit = &unitDTO{Kind: p.Unit.Kind(), Count: p.Unit.Count()}
	}
	return dto
}

// productInput is the create/update body. Price accepts a JSON number or
// string.
type productInput struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Unit     *unitDTO        `json:"unit"`
}

func (in productInput) draft() (product.Draft, error) {
	d := product.Draft{Name: in.Name, Category: in.Category, Price: in.Price, Stock: in.Stock}
	if in.Unit != nil {
		if in.Unit.Count < 0 {
			return d, badRequest("unit count must not be negative")
		}
		u, err := product.UnitFrom(in.Unit.Kind, in.Unit.Count)
		if err != nil {
			return d, badRequest("%v", err)
		}
		d.Unit = u
	}
	return d, nil
}

type cartItemDTO struct {
	Product   productDTO `json:"product"`
	Quantity  int        `json:"quantity"`
	LineTotal float64    `json:"lineTotal"`
}

type cartDTO struct {
	Items    []cartItemDTO `json:"items"`
	Subtotal float64       `json:"subtotal"`
}

func newCartDTO(v *cart.View) cartDTO {
	dto := cartDTO{Items: make([]cartItemDTO, len(v.Items)), Subtotal: money(v.Subtotal)}
	for i, it := range v.Items {
		dto.Items[i] = cartItemDTO{
			Product:   newProductDTO(it.Product),
			Quantity:  it.Quantity,
			LineTotal: money(it.LineTotal()),
		}
	}
	return dto
}

type orderItemDTO struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	UnitLabel string  `json:"unitLabel,omitempty"`
	LineTotal float64 `json:"lineTotal"`
}

type locationDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type orderDTO struct {
	ID                  string         `json:"id"`
	UserID              string         `json:"userId"`
	Items               []orderItemDTO `json:"items"`
	SubtotalPrice       float64        `json:"subtotalPrice"`
	DiscountAmount      float64        `json:"discountAmount"`
	CouponCode          string         `json:"couponCode,omitempty"`
	DeliveryFee         float64        `json:"deliveryFee"`
	FreeDeliveryApplied bool           `json:"freeDeliveryApplied"`
	TotalPrice          float64        `json:"totalPrice"`
	Status              order.Status   `json:"status"`
	PaymentMode         string         `json:"paymentMode"`
	Address             string         `json:"address"`
	City                string         `json:"city,omitempty"`
	Location            *locationDTO   `json:"location"`
	IdempotencyKey      string         `json:"idempotencyKey,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func newOrderDTO(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:                  o.ID,
		UserID:              o.UserID,
		Items:               make([]orderItemDTO, len(o.Items)),
		SubtotalPrice:       money(o.Subtotal),
		DiscountAmount:      money(o.Discount),
		CouponCode:          o.CouponCode,
		DeliveryFee:         money(o.DeliveryFee),
		FreeDeliveryApplied: o.FreeDelivery,
		TotalPrice:          money(o.Total),
		Status:              o.Status,
		PaymentMode:         string(o.PaymentMode),
		Address:             o.Address,
		City:                o.City,
		IdempotencyKey:      o.IdempotencyKey,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	for i, it := range o.Items {
		dto.Items[i] = orderItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			UnitLabel: it.UnitLabel,
			LineTotal: money(it.LineTotal()),
		}
	}
	if o.Location != nil {
		dto.Location = &locationDTO{Latitude: o.Location.Latitude, Longitude: o.Location.Longitude}
	}
	return dto
}

func newOrderDTOs(orders []order.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i := range orders {
		out[i] = newOrderDTO(&orders[i])
	}
	return out
}

type shortageDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func newShortageDTOs(s []inventory.Shortage) []shortageDTO {
	out := make([]shortageDTO, len(s))
	for i, sh := range s {
		out[i] = shortageDTO{ProductID: sh.ProductID, Name: sh.Name, Requested: sh.Requested, Available: sh.Available}
	}
	return out
}

type couponDTO struct {
	Code          string     `json:"code"`
	Description   string     `json:"description,omitempty"`
	DiscountType  string     `json:"discountType"`
	DiscountValue float64    `json:"discountValue"`
	MinOrderValue float64    `json:"minOrderValue"`
	MaxDiscount   *float64   `json:"maxDiscount,omitempty"`
	StartsAt      *time.Time `json:"startsAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	UsageLimit    *int       `json:"usageLimit,omitempty"`
	UsageCount    int        `json:"usageCount"`
	IsActive      bool       `json:"isActive"`
}

func newCouponDTO(c *coupon.Coupon) couponDTO {
	dto := couponDTO{
		Code:          c.Code,
		Description:   c.Description,
		DiscountType:  string(c.DiscountType),
		DiscountValue: money(c.DiscountValue),
		MinOrderValue: money(c.MinOrderValue),
		StartsAt:      c.StartsAt,
		ExpiresAt:     c.ExpiresAt,
		UsageLimit:    c.UsageLimit,
		UsageCount:    c.UsageCount,
		IsActive:      c.IsActive,
	}
	if c.MaxDiscount.Valid {
		v := money(c.MaxDiscount.Decimal)
		dto.MaxDiscount = &v
	}
	return dto
}

func newCouponDTOs(cs []coupon.Coupon) []couponDTO {
	out := make([]couponDTO, len(cs))
	for i := range cs {
		out[i] = newCouponDTO(&cs[i])
	}
	return out
}

// couponInput is the admin create/update body. Decimal fields accept JSON
// numbers or strings.
type couponInput struct {
	Code          string              `json:"code"`
	Description   string              `json:"description"`
	DiscountType  string              `json:"discountType"`
	DiscountValue decimal.Decimal     `json:"discountValue"`
	MinOrderValue decimal.NullDecimal `json:"minOrderValue"`
	MaxDiscount   decimal.NullDecimal `json:"maxDiscount"`
	StartsAt      *time.Time          `json:"startsAt"`
	ExpiresAt     *time.Time          `json:"expiresAt"`
	UsageLimit    *int                `json:"usageLimit"`
	IsActive      *bool               `json:"isActive"`
}

func (in couponInput) coupon() (*coupon.Coupon, error) {
	typ, err := coupon.ParseDiscountType(in.DiscountType)
	if err != nil {
		return nil, err
	}
	c := &coupon.Coupon{
		Code:          in.Code,
		Description:   in.Description,
		DiscountType:  typ,
		DiscountValue: in.DiscountValue,
		MaxDiscount:   in.MaxDiscount,
		StartsAt:      in.StartsAt,
		ExpiresAt:     in.ExpiresAt,
		UsageLimit:    in.UsageLimit,
		IsActive:      in.IsActive == nil || *in.IsActive,
	}
	if in.MinOrderValue.Valid {
		c.MinOrderValue = in.MinOrderValue.Decimal
	}
	return c, nil
}

type cityDTO struct {
	Name                  string  `json:"name"`
	BasePrice             float64 `json:"basePrice"`
	PricePerKg            float64 `json:"pricePerKg"`
	FreeDeliveryThreshold float64 `json:"freeDeliveryThreshold"`
}

type deliveryDTO struct {
	Enabled           bool          `json:"enabled"`
	Mode              delivery.Mode `json:"mode"`
	MinOrderSubtotal  float64       `json:"minOrderSubtotal"`
	FlatFee           float64       `json:"flatFee"`
	FlatFreeThreshold float64       `json:"flatFreeThreshold"`
	Cities            []cityDTO     `json:"cities"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func newDeliveryDTO(c *delivery.Config) deliveryDTO {
	dto := deliveryDTO{
		Enabled:           c.Enabled,
		Mode:              c.Mode,
		MinOrderSubtotal:  money(c.MinOrderSubtotal),
		FlatFee:           money(c.FlatFee),
		FlatFreeThreshold: money(c.FlatFreeThreshold),
		Cities:            make([]cityDTO, len(c.Cities)),
		UpdatedAt:         c.UpdatedAt,
	}
	for i, city := range c.Cities {
		dto.Cities[i] = cityDTO{
			Name:                  city.Name,
			BasePrice:             money(city.BasePrice),
			PricePerKg:            money(city.PricePerKg),
			FreeDeliveryThreshold: money(city.FreeDeliveryThreshold),
		}
	}
	return dto
}

// deliveryInput is the admin settings body. Cities reuse the domain JSON
// shape, whose decimals accept numbers or strings.
type deliveryInput struct {
	Enabled           *bool           `json:"enabled"`
	Mode              delivery.Mode   `json:"mode"`
	MinOrderSubtotal  decimal.Decimal `json:"minOrderSubtotal"`
	FlatFee           decimal.Decimal `json:"flatFee"`
	FlatFreeThreshold decimal.Decimal `json:"flatFreeThreshold"`
	Cities            []delivery.City `json:"cities"`
}

func (in deliveryInput) config() *delivery.Config {
	return &delivery.Config{
		Enabled:           in.Enabled == nil || *in.Enabled,
		Mode:              in.Mode,
		MinOrderSubtotal:  in.MinOrderSubtotal,
		FlatFee:           in.FlatFee,
		FlatFreeThreshold: in.FlatFreeThreshold,
		Cities:            in.Cities,
	}
}

type auditDTO struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	ActorRole  string          `json:"actorRole"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func newAuditDTOs(entries []audit.Entry) []auditDTO {
	out := make([]auditDTO, len(entries))
	for i, e := range entries {
		out[i] = auditDTO(e)
	}
	return out
}

type userDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      user.Role `json:"role"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserDTO(u *user.User) userDTO {
	return userDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		Address:   u.Address.Line,
		City:      u.Address.City,
		Latitude:  u.Address.Latitude,
		Longitude: u.Address.Longitude,
		CreatedAt: u.CreatedAt,
	}
}

type categoryDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newCategoryDTO(c *category.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Slug: c.Slug, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func newCategoryDTOs(cs []category.Category) []categoryDTO {
	out := make([]categoryDTO, len(cs))
	for i := range cs {
		out[i] = newCategoryDTO(&cs[i])
	}
	return out
}
