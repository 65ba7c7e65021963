package model

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
	Hospital  *Hospital `json:"hospital"`
}

// Principal is the verified identity behind a request.
type Principal struct {
	UserID     uuid.UUID `json:"user_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	TokenID    string    `json:"-"`
	ExpiresAt  time.Time `json:"-"`
}

func (p *Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
