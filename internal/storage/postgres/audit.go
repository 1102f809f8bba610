package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/audit"
)

var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository appends and lists audit entries.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository returns an AuditRepository that uses the given pool.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts e, assigning an id when missing.
func (r *AuditRepository) Append(ctx context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query, args, err := psql.Insert("audit_logs").
		Columns("id", "actor_id", "actor_role", "action", "entity_type", "entity_id", "before", "after", "meta").
		Values(e.ID, e.ActorID, e.ActorRole, e.Action, e.EntityType, e.EntityID,
			jsonArg(e.Before), jsonArg(e.After), jsonArg(e.Meta)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building audit insert query: %w", err)
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// List returns the newest entries matching f.
func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	b := psql.Select("id", "actor_id", "actor_role", "action", "entity_type", "entity_id",
		"before", "after", "meta", "created_at").
		From("audit_logs").
		OrderBy("created_at DESC")
	if f.EntityType != "" {
		b = b.Where(sq.Eq{"entity_type": f.EntityType})
	}
	if f.EntityID != "" {
		b = b.Where(sq.Eq{"entity_id": f.EntityID})
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query, args, err := b.Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.Entry, error) {
		var (
			e                   audit.Entry
			before, after, meta []byte
		)
		err := row.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID,
			&before, &after, &meta, &e.CreatedAt)
		e.Before, e.After, e.Meta = before, after, meta
		return e, err
	})
}

// jsonArg maps an empty document to SQL NULL.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
