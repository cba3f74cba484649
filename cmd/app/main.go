package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skylane/booking/config"
	"github.com/skylane/booking/internal/bootstrap"
	"github.com/skylane/booking/internal/cache"
	"github.com/skylane/booking/internal/clients"
	"github.com/skylane/booking/internal/kafka"
	"github.com/skylane/booking/internal/logging"
	"github.com/skylane/booking/internal/repository"
	"github.com/skylane/booking/internal/service/booking"
)

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
	)

	if err := bootstrap.Run(ctx, cfg, coordinator); err != nil {
		logger.Fatal("server error: " + err.Error())
	}
}
