// Package audit records admin actions in an append-only log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Actions written by admin operations.
const (
	ActionOrderStatusUpdate      = "ORDER_STATUS_UPDATE"
	ActionCouponCreate           = "COUPON_CREATE"
	ActionCouponUpdate           = "COUPON_UPDATE"
	ActionCouponDelete           = "COUPON_DELETE"
	ActionDeliverySettingsUpdate = "DELIVERY_SETTINGS_UPDATE"
	ActionStockAdjust            = "PRODUCT_STOCK_ADJUST"
	ActionProductCreate          = "PRODUCT_CREATE"
	ActionProductUpdate          = "PRODUCT_UPDATE"
	ActionProductDelete          = "PRODUCT_DELETE"
	ActionCategoryCreate         = "CATEGORY_CREATE"
	ActionCategoryUpdate         = "CATEGORY_UPDATE"
	ActionCategoryDelete         = "CATEGORY_DELETE"
)

// Entry is a single audit record. Before, After and Meta hold JSON documents.
type Entry struct {
	ID         string
	ActorID    string
	ActorRole  string
	Action     string
	EntityType string
	EntityID   string
	Before     json.RawMessage
	After      json.RawMessage
	Meta       json.RawMessage
	CreatedAt  time.Time
}

// Filter narrows audit listings.
type Filter struct {
	EntityType string
	EntityID   string
	Limit      int
}

// Repository persists audit entries.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Actor identifies who performed an action.
type Actor struct {
	ID   string
	Role string
}

// Change describes a single audited mutation.
type Change struct {
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
	Meta       map[string]any
}

// Recorder appends audit entries without ever failing the caller.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a Recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends c on behalf of actor. Anonymous actors are skipped and
// append failures are only logged.
func (r *Recorder) Record(ctx context.Context, actor Actor, c Change) {
	if r == nil || actor.ID == "" {
		return
	}
	lg := zctx.From(ctx).With(zap.String("action", c.Action), zap.String("entity_id", c.EntityID))

	e := Entry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     c.Action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
	}
	var err error
	if e.Before, err = encode(c.Before); err != nil {
		lg.Warn("Encode audit before", zap.Error(err))
	}
	if e.After, err = encode(c.After); err != nil {
		lg.Warn("Encode audit after", zap.Error(err))
	}
	if c.Meta != nil {
		if e.Meta, err = encode(c.Meta); err != nil {
			lg.Warn("Encode audit meta", zap.Error(err))
		}
	}

	if err := r.repo.Append(ctx, e); err != nil {
		lg.Error("Append audit entry", zap.Error(err))
	}
}

func encode(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
