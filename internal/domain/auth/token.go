// Package auth issues and verifies HS256 bearer tokens.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v4"

	"github.com/sakkat/grocery-market/internal/domain/user"
)

var (
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned when constructing a Keys without a secret.
	ErrMissingSecret = errors.New("jwt secret required")
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Role   user.Role
	Email  string
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool { return i.Role == user.RoleAdmin }

type claims struct {
	Role  user.Role `json:"role"`
	Email string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Keys signs and verifies tokens with a shared secret.
type Keys struct {
	secret []byte
	now    func() time.Time
}

// NewKeys creates Keys for the given secret.
func NewKeys(secret string) (*Keys, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Keys{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a token for id valid for ttl.
func (k *Keys) Issue(id Identity, ttl time.Duration) (string, error) {
	now := k.now()
	c := claims{
		Role:  id.Role,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(k.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses raw and returns the identity it carries.
func (k *Keys) Verify(raw string) (Identity, error) {
	var c claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return k.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(k.now()) {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" || !c.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Role: c.Role, Email: c.Email}, nil
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
