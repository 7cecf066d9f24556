// Command mailer consumes email notifications from RabbitMQ and delivers them over SMTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nekogravitycat/museum-booking-backend/internal/config"
	"github.com/nekogravitycat/museum-booking-backend/internal/notify"
	"github.com/nekogravitycat/museum-booking-backend/internal/pkg/logger"
)

const (
	connectAttempts = 10
	connectDelay    = 3 * time.Second
	prefetch        = 10
	maxDeliveries   = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.IsProduction)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	consumer, err := connect(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer func() { _ = consumer.Close() }()

	zl.Info("mailer running",
		zap.String("exchange", cfg.AMQPExchange),
		zap.String("queue", cfg.MailerQueue),
		zap.String("smtp_host", cfg.SMTP.Host),
	)
	if err := consumer.Run(ctx, notify.NewSMTPSender(cfg.SMTP)); err != nil {
		zl.Fatal("consumer stopped", zap.Error(err))
	}
	zl.Info("mailer exited gracefully")
}

// connect retries while the broker starts up alongside the mailer.
func connect(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*notify.Consumer, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		c, err := notify.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.MailerQueue, prefetch, maxDeliveries, zl)
		if err == nil {
			return c, nil
		}
		lastErr = err
		zl.Warn("rabbitmq not ready", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return nil, lastErr
}
