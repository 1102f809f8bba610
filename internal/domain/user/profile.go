package user

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ProfileUpdate holds the profile fields a user may change. Nil fields keep
// their stored value. Email and role are not editable.
type ProfileUpdate struct {
	Name      *string
	Phone     *string
	Address   *string
	City      *string
	Latitude  *float64
	Longitude *float64
}

// Service implements profile reads and edits.
type Service struct {
	repo ProfileStore
}

// NewService creates a user Service.
func NewService(repo ProfileStore) *Service {
	return &Service{repo: repo}
}

// Profile returns the account of id.
func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies upd to the account of id and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := upd.applyTo(u); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update profile")
	}
	return u, nil
}

func (upd ProfileUpdate) applyTo(u *User) error {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return &ValidationError{Field: "name", Reason: "required"}
		}
		u.Name = name
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		u.Address.Line = strings.TrimSpace(*upd.Address)
	}
	if upd.City != nil {
		u.Address.City = strings.TrimSpace(*upd.City)
	}
	if u.Address.City == "" {
		u.Address.City = DefaultCity
	}
	if upd.Latitude != nil {
		u.Address.Latitude = upd.Latitude
	}
	if upd.Longitude != nil {
		u.Address.Longitude = upd.Longitude
	}
	return ValidateLocation(u.Address.Latitude, u.Address.Longitude)
}

// ValidateLocation checks that coordinates, when set, are in range.
func ValidateLocation(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return &ValidationError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return &ValidationError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}
