package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakkat/grocery-market/internal/domain/user"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Credentials persists accounts with their password hashes.
type Credentials interface {
	// Create inserts u. It returns user.ErrEmailTaken for a registered email.
	Create(ctx context.Context, u *user.User, passwordHash []byte) error
	// PasswordHash returns the account registered under email and its hash.
	PasswordHash(ctx context.Context, email string) (*user.User, []byte, error)
}

// Signup is a new customer account request.
type Signup struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  user.Address
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// Accounts registers customers and exchanges passwords for bearer tokens.
type Accounts struct {
	store Credentials
	keys  *Keys
	ttl   time.Duration
	cost  int
	newID func() string
}

// NewAccounts creates Accounts issuing tokens valid for ttl.
func NewAccounts(store Credentials, keys *Keys, ttl time.Duration) *Accounts {
	return &Accounts{
		store: store,
		keys:  keys,
		ttl:   ttl,
		cost:  bcrypt.DefaultCost,
		newID: func() string { return uuid.New().String() },
	}
}

// Signup registers a customer. Farmer and admin accounts are provisioned
// out of band.
func (a *Accounts) Signup(ctx context.Context, s Signup) (*user.User, error) {
	email, err := NormalizeEmail(s.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(s.Name)
	switch {
	case name == "":
		return nil, &user.ValidationError{Field: "name", Reason: "required"}
	case len(s.Password) < MinPasswordLength:
		return nil, &user.ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	if err := user.ValidateLocation(s.Address.Latitude, s.Address.Longitude); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), a.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := &user.User{
		ID:      a.newID(),
		Name:    name,
		Email:   email,
		Phone:   strings.TrimSpace(s.Phone),
		Role:    user.RoleUser,
		Address: s.Address,
	}
	u.Address.Line = strings.TrimSpace(u.Address.Line)
	if u.Address.City = strings.TrimSpace(u.Address.City); u.Address.City == "" {
		u.Address.City = user.DefaultCity
	}
	if err := a.store.Create(ctx, u, hash); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create account")
	}
	return u, nil
}

// Login verifies a password and issues a token for the account.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, hash, err := a.store.PasswordHash(ctx, email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, errors.Wrap(err, "load account")
	}
	// Accounts without a password were provisioned and cannot log in.
	if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := a.keys.Issue(Identity{UserID: u.ID, Role: u.Role, Email: u.Email}, a.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: a.keys.now().Add(a.ttl), User: u}, nil
}

// NormalizeEmail trims and lower-cases a bare email address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &user.ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	return email, nil
}
