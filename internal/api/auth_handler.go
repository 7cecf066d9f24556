package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/museum-booking-backend/internal/admin"
	"github.com/nekogravitycat/museum-booking-backend/internal/auth"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/response"
)

type AuthHandler struct {
	adminService admin.Service
	jwtManager   *auth.JWTManager
}

func NewAuthHandler(adminService admin.Service, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		adminService: adminService,
		jwtManager:   jwtManager,
	}
}

//
// POST /v1/auth/login
//

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request", nil)
		return
	}

	a, err := h.adminService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Unknown email and wrong password both surface as ErrInvalidCredentials.
		response.Error(c, err)
		return
	}

	token, err := h.jwtManager.Issue(a.ID, a.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt,
		Admin:       NewAdminResponse(a),
	})
}

//
// GET /v1/me
//

func (h *AuthHandler) Me(c *gin.Context) {
	adminID := auth.GetAdminID(c)
	if adminID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	a, err := h.adminService.GetByID(c.Request.Context(), adminID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}

	c.JSON(http.StatusOK, MeResponse{Admin: NewAdminResponse(a)})
}
