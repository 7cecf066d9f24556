package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/admin"
	"github.com/nekogravitycat/museum-booking-backend/internal/api"
	"github.com/nekogravitycat/museum-booking-backend/internal/auth"
	"github.com/nekogravitycat/museum-booking-backend/internal/booking"
	"github.com/nekogravitycat/museum-booking-backend/internal/worker"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction   bool
	AllowedOrigins []string
	DBPool         *pgxpool.Pool
	JWTSecret      string
	JWTTTL         time.Duration
	BcryptCost     int
	Logger         *zap.Logger

	Rules         booking.Rules
	Notifier      booking.Notifier
	SweepInterval time.Duration
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	JWTManager     *auth.JWTManager
	AdminService   admin.Service
	BookingService booking.Service
	Sweeper        *worker.Sweeper
}

// NewContainer initializes all modules and returns the container.
// The sweeper is built but not started.
func NewContainer(cfg Config) *Container {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Init Components
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// Admin Module
	adminRepo := admin.NewPgxRepository(cfg.DBPool)
	adminService := admin.NewService(adminRepo, passwordHasher, log)

	// Booking Module
	bookingRepo := booking.NewPgxRepository(cfg.DBPool)
	bookingService := booking.NewService(bookingRepo, cfg.Notifier, cfg.Rules, log)

	// Retention Sweep
	sweeper := worker.NewSweeper(bookingService.Sweep, cfg.SweepInterval, log)

	// API Router Config
	routerParams := api.Config{
		IsProduction:   cfg.IsProduction,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
		AdminService:   adminService,
		BookingService: bookingService,
		Sweeper:        sweeper,
		JWTManager:     jwtManager,
	}

	// Router
	router := api.NewRouter(routerParams)

	return &Container{
		Router:         router,
		JWTManager:     jwtManager,
		AdminService:   adminService,
		BookingService: bookingService,
		Sweeper:        sweeper,
	}
}
