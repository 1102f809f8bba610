package handler

import (
	"net/http"
	"time"

	"github.com/sakkat/grocery-market/internal/domain/auth"
	"github.com/sakkat/grocery-market/internal/domain/user"
)

type signupInput struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Phone     string   `json:"phone"`
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionDTO struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      userDTO   `json:"user"`
}

type profileInput struct {
	Name      *string  `json:"name"`
	Phone     *string  `json:"phone"`
	Address   *string  `json:"address"`
	City      *string  `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var in signupInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Accounts.Signup(r.Context(), auth.Signup{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Phone:    in.Phone,
		Address: user.Address{
			Line:      in.Address,
			City:      in.City,
			Latitude:  in.Latitude,
			Longitude: in.Longitude,
		},
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserDTO(u))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO{Token: s.Token, ExpiresAt: s.ExpiresAt, User: newUserDTO(s.User)})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Profile(r.Context(), identity(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserDTO(u))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in profileInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.Users.UpdateProfile(r.Context(), identity(r).UserID, user.ProfileUpdate{
		Name:      in.Name,
		Phone:     in.Phone,
		Address:   in.Address,
		City:      in.City,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserDTO(u))
}
