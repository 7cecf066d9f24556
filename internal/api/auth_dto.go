package api

import (
	"time"

	"github.com/nekogravitycat/museum-booking-backend/internal/admin"
)

// LoginRequest is the payload for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminResponse is the shape of admin data returned in API responses.
type AdminResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName *string    `json:"display_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// LoginResponse is the response for POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Admin       AdminResponse `json:"admin"`
}

// MeResponse is the response for GET /v1/me.
type MeResponse struct {
	Admin AdminResponse `json:"admin"`
}

func NewAdminResponse(a *admin.Admin) AdminResponse {
	return AdminResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}
