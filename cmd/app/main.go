package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/ticketbooking/api"
	"github.com/Domenick1991/ticketbooking/config"
	"github.com/Domenick1991/ticketbooking/internal/bootstrap"
	"github.com/Domenick1991/ticketbooking/internal/cache"
	"github.com/Domenick1991/ticketbooking/internal/gateway"
	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/Domenick1991/ticketbooking/internal/lock"
	"github.com/Domenick1991/ticketbooking/internal/pricing"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/Domenick1991/ticketbooking/internal/scheduler"
	"github.com/Domenick1991/ticketbooking/internal/service/booking"
	"github.com/Domenick1991/ticketbooking/internal/service/events"
	"github.com/Domenick1991/ticketbooking/internal/service/payment"
	"github.com/Domenick1991/ticketbooking/internal/service/tickets"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		bootstrap.NewLogger(config.LogConfig{}, os.Stderr).Error("load config", "error", err)
		os.Exit(1)
	}

	logger := bootstrap.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feeRate, err := decimal.NewFromString(cfg.Booking.ServiceFeeRate)
	if err != nil {
		fatal("parse service fee rate", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		fatal("connect postgres", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		fatal("ping postgres", err)
	}
	store := repository.NewPGStore(pool)

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	asynqClient := asynq.NewClient(scheduler.RedisOpt(cfg.Redis))
	defer asynqClient.Close()
	inspector := asynq.NewInspector(scheduler.RedisOpt(cfg.Redis))
	defer inspector.Close()
	expirations := scheduler.NewAsynqScheduler(asynqClient, inspector)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		// Notifications are best-effort; the API still serves bookings.
		logger.Warn("kafka unreachable", "brokers", cfg.Kafka.Brokers, "error", err)
	}

	eventCache := cache.NewEventCache(redisClient, cfg.Booking.EventsCacheTTL())
	eventService := events.NewEventService(store, eventCache, events.WithLogger(logger))
	bookingService := booking.NewBookingService(
		store,
		lock.NewRedisLocker(redisClient, lock.WithLogger(logger)),
		expirations,
		booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithEventCache(eventCache),
		booking.WithPricing(pricing.NewCalculator(feeRate)),
		booking.WithReservationWindow(cfg.Booking.ReservationWindow()),
		booking.WithLockTTL(cfg.Lock.TTL()),
		booking.WithSweepBatch(cfg.Worker.SweepBatchSize),
		booking.WithLogger(logger),
	)
	paymentService := payment.NewPaymentService(
		store,
		gateway.NewStripeGateway(cfg.Payments.StripeSecretKey, cfg.Payments.StripeWebhookSecret),
		tickets.NewIssuer(store, tickets.WithLogger(logger)),
		expirations,
		payment.WithProducer(producer.Retrying(3), cfg.Kafka.NotificationsTopic),
		payment.WithEventCache(eventCache),
		payment.WithCurrency(cfg.Payments.Currency),
		payment.WithLogger(logger),
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(logger, []byte(cfg.Auth.JWTSecret), api.Handlers{
		Events:   api.NewEventHandler(eventService),
		Bookings: api.NewBookingHandler(bookingService, paymentService),
		Webhooks: api.NewWebhookHandler(paymentService),
	})
	bootstrap.MountOps(router, api.OpenAPI)

	if err := bootstrap.Run(ctx, cfg.HTTP, router, logger); err != nil {
		fatal("server error", err)
	}
}
