package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/app"
	"github.com/nekogravitycat/museum-booking-backend/internal/config"
	"github.com/nekogravitycat/museum-booking-backend/internal/db"
	"github.com/nekogravitycat/museum-booking-backend/internal/notify"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/logger"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/telemetry"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Logger
	zl, err := logger.New(cfg.LogLevel, cfg.IsProduction)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		ServiceName: cfg.ServiceName,
		Environment: environment(cfg),
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			zl.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN, db.PoolOptions{EnableTracing: cfg.OTelEndpoint != ""})
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		zl.Info("database schema applied")
	}

	// Notifications
	sender, closeSender, err := newSender(cfg, zl)
	if err != nil {
		return err
	}
	defer closeSender()

	queue := notify.NewQueue(sender, notify.Renderer{
		MuseumName:     cfg.MuseumName,
		ConfirmURLBase: cfg.ConfirmURLBase,
		TokenTTL:       cfg.Booking.TokenTTL,
		Location:       cfg.Booking.Location,
	}, cfg.Queue, zl)
	queue.Start(context.Background())
	defer queue.Stop()

	// Modules
	container := app.NewContainer(app.Config{
		IsProduction:   cfg.IsProduction,
		AllowedOrigins: cfg.AllowedOrigins,
		DBPool:         pool,
		JWTSecret:      cfg.JWTSecret,
		JWTTTL:         cfg.JWTAccessTokenTTL,
		BcryptCost:     cfg.BcryptCost,
		Logger:         zl,
		Rules:          cfg.Booking,
		Notifier:       queue,
		SweepInterval:  cfg.SweepInterval,
	})

	if cfg.AdminEmail != "" {
		a, created, err := container.AdminService.EnsureSeed(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminDisplayName)
		if err != nil {
			return err
		}
		if !created {
			zl.Info("admin account already present", zap.String("email", a.Email))
		}
	}

	container.Sweeper.Start(ctx)
	defer container.Sweeper.Stop()

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(container.Router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in separate goroutine
	serverErr := make(chan error, 1)
	go func() {
		zl.Info("server running", zap.String("addr", cfg.HTTPAddr), zap.String("notify_driver", cfg.NotifyDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for Ctrl+C
	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server; the deferred calls then stop the sweeper, drain the queue and close the pool.
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server exited gracefully")
	return nil
}

// newSender picks the delivery backend for the notification queue.
func newSender(cfg *config.Config, zl *zap.Logger) (notify.Sender, func(), error) {
	switch cfg.NotifyDriver {
	case config.NotifyDriverSMTP:
		return notify.NewSMTPSender(cfg.SMTP), func() {}, nil
	case config.NotifyDriverAMQP:
		s, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				zl.Warn("failed to close amqp sender", zap.Error(err))
			}
		}, nil
	default:
		return notify.NewLogSender(zl), func() {}, nil
	}
}

func environment(cfg *config.Config) string {
	if cfg.IsProduction {
		return config.PROD_STRING
	}
	return "dev"
}
