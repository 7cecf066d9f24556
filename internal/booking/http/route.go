package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, adminMiddleware gin.HandlerFunc) {
	group := g.Group("/bookings")

	// === Public Routes ===
	{
		group.POST("", h.Create)
		group.POST("/confirm/:token", h.Confirm)
		group.GET("/confirmed-count", h.ConfirmedCount)
		group.GET("/calendar-density/:year/:month", h.CalendarDensity)
	}

	// === Administration Routes ===
	adminGroup := group.Group("")
	adminGroup.Use(authMiddleware, adminMiddleware)
	{
		adminGroup.GET("", h.List)
		adminGroup.GET("/all", h.ListAll)
		adminGroup.GET("/pending-count", h.PendingCount)
		adminGroup.GET("/:id", h.Get)
		adminGroup.PUT("", h.Update)
		adminGroup.DELETE("/:id", h.Delete)
		adminGroup.POST("/:id/approve", h.Approve)
		adminGroup.POST("/:id/reject", h.Reject)
		adminGroup.POST("/sweep", h.Sweep)
	}
}
