package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError reports an invalid account or profile field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// DefaultCity is assigned to addresses that never had a city set.
const DefaultCity = "Mysore"

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser   Role = "user"
	RoleFarmer Role = "farmer"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleFarmer, RoleAdmin:
		return true
	}
	return false
}

// Address is the saved delivery address of a user.
type Address struct {
	Line      string
	City      string
	Latitude  *float64
	Longitude *float64
}

// User is a marketplace account.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      Role
	Address   Address
	CreatedAt time.Time
}

// Repository provides user lookup.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// ProfileStore persists profile edits.
type ProfileStore interface {
	Repository
	// UpdateProfile writes the name, phone and address of u.
	UpdateProfile(ctx context.Context, u *User) error
}
