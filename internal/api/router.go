package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/admin"
	"github.com/nekogravitycat/museum-booking-backend/internal/auth"
	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	bookingHttp "github.com/nekogravitycat/museum-booking-backend/internal/booking/http"
)

// Config holds the services the router wires into handlers.
type Config struct {
	IsProduction   bool
	AllowedOrigins []string
	Logger         *zap.Logger

	AdminService   admin.Service
	BookingService booking.Service
	Sweeper        bookingHttp.SweepRunner
	JWTManager     *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()

	// Global Middleware:
	// - RequestID: Tags every request so log lines can be correlated.
	// - RequestLogger: Logs one structured line per request.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(RequestID(), RequestLogger(log.Named("http")), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		config.AllowOrigins = cfg.AllowedOrigins
	} else {
		config.AllowOrigins = []string{
			"http://localhost:3000", // Museum website (dev)
			"http://localhost:8081", // Swagger
		}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
	config.ExposeHeaders = []string{requestIDHeader}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// adminMiddleware: Further checks that the token belongs to an active admin account.
	adminMiddleware := RequireAdmin(cfg.AdminService)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	authHandler := NewAuthHandler(cfg.AdminService, cfg.JWTManager)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.Sweeper)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", authHandler.Login)
		v1.GET("/me", authMiddleware, adminMiddleware, authHandler.Me)

		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware, adminMiddleware)
	}

	return r
}
