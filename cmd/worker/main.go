package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/skylane/booking/config"
	"github.com/skylane/booking/internal/cache"
	"github.com/skylane/booking/internal/clients"
	"github.com/skylane/booking/internal/email"
	"github.com/skylane/booking/internal/kafka"
	"github.com/skylane/booking/internal/logging"
	"github.com/skylane/booking/internal/repository"
	"github.com/skylane/booking/internal/service/booking"
	"go.uber.org/zap"
)

// The worker runs the pieces of the saga that cannot rely on client calls:
// the payment-window expiry sweep, the reserve-intent recovery sweep, and the
// notification consumer.
func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres: " + err.Error())
	}
	defer pool.Close()

	clientTimeout := time.Duration(cfg.Services.TimeoutSeconds) * time.Second
	inventory := clients.NewInventoryClient(cfg.Services.FlightServiceURL, clientTimeout)
	users := clients.NewUserClient(cfg.Services.UserServiceURL, clientTimeout)

	idemStore := cache.NewIdempotencyStore(cfg.Redis, time.Duration(cfg.Booking.IdempotencyTTLHours)*time.Hour)
	defer idemStore.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool)
	coordinator := booking.NewCoordinator(
		bookingRepo,
		inventory,
		users,
		idemStore,
		producer,
		time.Duration(cfg.Booking.PaymentWindowMinutes)*time.Minute,
		logger,
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithIntentGrace(time.Duration(cfg.Worker.IntentGraceSeconds)*time.Second),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender(logger)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.NotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				logger.Warn("decode notification event", zap.Error(err))
				return nil
			}
			return emailSender.Send(ctx, event)
		}); err != nil {
			logger.Warn("consumer stopped", zap.Error(err))
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	recoveryTicker := time.NewTicker(time.Duration(cfg.Worker.RecoverySweepMinutes) * time.Minute)
	defer recoveryTicker.Stop()

	for {
		select {
		case <-expireTicker.C:
			expired, err := coordinator.ExpireStaleBookings(ctx)
			if err != nil {
				logger.Error("expiry sweep failed", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("expired stale bookings", zap.Int("count", len(expired)))
			}
		case <-recoveryTicker.C:
			recovered, err := coordinator.RecoverIntents(ctx)
			if err != nil {
				logger.Error("intent recovery failed", zap.Error(err))
				continue
			}
			if recovered > 0 {
				logger.Info("recovered intents", zap.Int("count", recovered))
			}
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		}
	}
}
