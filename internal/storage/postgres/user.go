package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

const userColumns = `id, name, email, phone, role, address, city, latitude, longitude, created_at`

const (
	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getPasswordHashSQL = `SELECT ` + userColumns + `, password_hash FROM users WHERE email = $1`

	createUserSQL = `INSERT INTO users (id, name, email, phone, role, address, city, latitude, longitude, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	updateProfileSQL = `UPDATE users SET name = $2, phone = $3, address = $4, city = $5, latitude = $6, longitude = $7
		WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, phone, role, address, city, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone, role = EXCLUDED.role,
			address = EXCLUDED.address, city = EXCLUDED.city,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude`
)

var (
	_ user.ProfileStore = (*UserRepository)(nil)
	_ auth.Credentials  = (*UserRepository)(nil)
)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// Create inserts a new account. It returns user.ErrEmailTaken when the
// email is registered.
func (r *UserRepository) Create(ctx context.Context, u *user.User, passwordHash []byte) error {
	err := r.pool.QueryRow(ctx, createUserSQL,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role),
		u.Address.Line, u.Address.City, u.Address.Latitude, u.Address.Longitude, string(passwordHash),
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	return nil
}

// PasswordHash returns the account registered under email with its
// password hash. Provisioned accounts have an empty hash.
func (r *UserRepository) PasswordHash(ctx context.Context, email string) (*user.User, []byte, error) {
	var (
		u    user.User
		role string
		hash string
	)
	err := r.pool.QueryRow(ctx, getPasswordHashSQL, email).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role,
		&u.Address.Line, &u.Address.City, &u.Address.Latitude, &u.Address.Longitude, &u.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, user.ErrNotFound
		}
		return nil, nil, fmt.Errorf("getting credentials of %q: %w", email, err)
	}
	u.Role = user.Role(role)
	return &u, []byte(hash), nil
}

// UpdateProfile writes the editable profile fields of u.
func (r *UserRepository) UpdateProfile(ctx context.Context, u *user.User) error {
	tag, err := r.pool.Exec(ctx, updateProfileSQL,
		u.ID, u.Name, u.Phone, u.Address.Line, u.Address.City, u.Address.Latitude, u.Address.Longitude)
	if err != nil {
		return fmt.Errorf("updating profile of %q: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a user. Used for seeding.
func (r *UserRepository) Upsert(ctx context.Context, u user.User) error {
	city := u.Address.City
	if city == "" {
		city = user.DefaultCity
	}
	_, err := r.pool.Exec(ctx, upsertUserSQL,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role),
		u.Address.Line, city, u.Address.Latitude, u.Address.Longitude,
	)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role,
		&u.Address.Line, &u.Address.City, &u.Address.Latitude, &u.Address.Longitude, &u.CreatedAt)
	u.Role = user.Role(role)
	return u, err
}
