package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Domenick1991/ticketbooking/config"
	"github.com/Domenick1991/ticketbooking/internal/bootstrap"
	"github.com/Domenick1991/ticketbooking/internal/cache"
	"github.com/Domenick1991/ticketbooking/internal/email"
	"github.com/Domenick1991/ticketbooking/internal/kafka"
	"github.com/Domenick1991/ticketbooking/internal/lock"
	"github.com/Domenick1991/ticketbooking/internal/repository"
	"github.com/Domenick1991/ticketbooking/internal/scheduler"
	"github.com/Domenick1991/ticketbooking/internal/service/booking"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The worker runs the expiration queue, the periodic sweep that backs it up,
// and the notification consumer.
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

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		fatal("connect postgres", err)
	}
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	asynqClient := asynq.NewClient(scheduler.RedisOpt(cfg.Redis))
	defer asynqClient.Close()
	inspector := asynq.NewInspector(scheduler.RedisOpt(cfg.Redis))
	defer inspector.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	bookingService := booking.NewBookingService(
		repository.NewPGStore(pool),
		lock.NewRedisLocker(redisClient, lock.WithLogger(logger)),
		scheduler.NewAsynqScheduler(asynqClient, inspector),
		booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithEventCache(cache.NewEventCache(redisClient, cfg.Booking.EventsCacheTTL())),
		booking.WithLockTTL(cfg.Lock.TTL()),
		booking.WithSweepBatch(cfg.Worker.SweepBatchSize),
		booking.WithLogger(logger),
	)

	server := asynq.NewServer(scheduler.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{scheduler.QueueExpirations: 1},
		Logger:      &asynqLogger{logger: logger},
	})
	if err := server.Start(scheduler.NewHandler(bookingService, logger).Mux()); err != nil {
		fatal("start task server", err)
	}
	defer server.Shutdown()

	periodic := asynq.NewScheduler(scheduler.RedisOpt(cfg.Redis), &asynq.SchedulerOpts{
		Logger: &asynqLogger{logger: logger},
	})
	entryID, err := scheduler.RegisterSweep(periodic, cfg.Worker.SweepInterval())
	if err != nil {
		fatal("register sweep", err)
	}
	if err := periodic.Start(); err != nil {
		fatal("start scheduler", err)
	}
	defer periodic.Shutdown()
	logger.Info("expiration sweep registered", "entry_id", entryID, "interval", cfg.Worker.SweepInterval())

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()
	sender := email.NewSender(logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Consume(ctx, sender.Send); err != nil {
			logger.Error("notification consumer stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")
	wg.Wait()
}
