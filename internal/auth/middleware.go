package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthRequired rejects requests without a valid admin token in Authorization: Bearer <token>.
// On success the admin id and email are stored in the context for GetAdminID and GetAdminEmail.
func AuthRequired(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			abortUnauthorized(c, "missing Authorization header")
			return
		}

		scheme, tokenStr, ok := strings.Cut(header, " ")
		tokenStr = strings.TrimSpace(tokenStr)
		if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
			abortUnauthorized(c, "invalid Authorization header format")
			return
		}

		claims, err := jwtManager.Verify(tokenStr)
		if errors.Is(err, ErrTokenExpired) {
			abortUnauthorized(c, "token expired")
			return
		}
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(adminIDKey, claims.AdminID())
		c.Set(adminEmailKey, claims.Email)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="museum-booking"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
