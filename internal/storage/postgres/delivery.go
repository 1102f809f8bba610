package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/delivery"
)

const (
	getDeliveryConfigSQL = `SELECT enabled, mode, min_order_subtotal, flat_fee, flat_free_threshold, cities, updated_at
		FROM delivery_config WHERE id`

	saveDeliveryConfigSQL = `INSERT INTO delivery_config
			(id, enabled, mode, min_order_subtotal, flat_fee, flat_free_threshold, cities, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled, mode = EXCLUDED.mode, min_order_subtotal = EXCLUDED.min_order_subtotal,
			flat_fee = EXCLUDED.flat_fee, flat_free_threshold = EXCLUDED.flat_free_threshold,
			cities = EXCLUDED.cities, updated_at = now()
		RETURNING updated_at`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository stores the delivery settings singleton.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// Get returns the stored settings, or delivery.Default when none exist.
// Stored settings are validated on load.
func (r *DeliveryRepository) Get(ctx context.Context) (*delivery.Config, error) {
	var (
		c          delivery.Config
		mode       string
		citiesJSON []byte
	)
	err := r.pool.QueryRow(ctx, getDeliveryConfigSQL).Scan(
		&c.Enabled, &mode, &c.MinOrderSubtotal, &c.FlatFee, &c.FlatFreeThreshold, &citiesJSON, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			d := delivery.Default()
			return &d, nil
		}
		return nil, fmt.Errorf("getting delivery config: %w", err)
	}
	c.Mode = delivery.Mode(mode)
	if err := json.Unmarshal(citiesJSON, &c.Cities); err != nil {
		return nil, fmt.Errorf("unmarshaling delivery cities: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save replaces the settings.
func (r *DeliveryRepository) Save(ctx context.Context, c *delivery.Config) error {
	cities := c.Cities
	if cities == nil {
		cities = []delivery.City{}
	}
	citiesJSON, err := json.Marshal(cities)
	if err != nil {
		return fmt.Errorf("marshaling delivery cities: %w", err)
	}
	err = r.pool.QueryRow(ctx, saveDeliveryConfigSQL,
		c.Enabled, string(c.Mode), c.MinOrderSubtotal, c.FlatFee, c.FlatFreeThreshold, citiesJSON,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving delivery config: %w", err)
	}
	return nil
}
