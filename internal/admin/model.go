package admin

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, "admin not found")
	ErrEmailAlreadyUsed   = apperror.New(http.StatusConflict, "email already used")
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, "invalid email or password")
	ErrInactive           = apperror.New(http.StatusForbidden, "admin account is inactive")
)

// Admin is a museum staff account allowed to manage bookings.
type Admin struct {
	ID           string // UUID
	Email        string
	PasswordHash string
	DisplayName  *string
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}
