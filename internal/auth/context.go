package auth

import "github.com/gin-gonic/gin"

const (
	adminIDKey    = "adminID"
	adminEmailKey = "adminEmail"
)

// GetAdminID returns the authenticated admin's ID or empty string.
func GetAdminID(c *gin.Context) string {
	return c.GetString(adminIDKey)
}

// GetAdminEmail returns the authenticated admin's email or empty string.
func GetAdminEmail(c *gin.Context) string {
	return c.GetString(adminEmailKey)
}
