package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notification-pipeline/internal/bus"
	"github.com/kursadbilgin/notification-pipeline/internal/config"
	"github.com/kursadbilgin/notification-pipeline/internal/email"
	"github.com/kursadbilgin/notification-pipeline/internal/handler"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-pipeline/internal/infra/redis"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/processor"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/service"
	"github.com/kursadbilgin/notification-pipeline/internal/transport"
	"github.com/kursadbilgin/notification-pipeline/internal/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	highPriorityFailureReason     = "high priority event processing failed"
	standardPriorityFailureReason = "standard priority event processing failed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notification pipeline failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()
	store := repository.NewGormNotificationRepo(db)

	directory, err := upstream.NewDirectoryClient(cfg.UsersServiceURL, cfg.DirectoryTimeout())
	if err != nil {
		return fmt.Errorf("directory client init failed: %w", err)
	}
	mailer, err := upstream.NewMailerClient(cfg.MailerURL, cfg.MailerTimeout())
	if err != nil {
		return fmt.Errorf("mailer client init failed: %w", err)
	}
	mailLimiter, err := infraredis.NewMailLimiter(rdb, cfg.MailRateLimitPerSec)
	if err != nil {
		return fmt.Errorf("mail limiter init failed: %w", err)
	}

	dispatcher, err := email.NewDispatcher(
		directory,
		mailer,
		mailLimiter,
		metrics,
		logger,
		cfg.SenderEmail,
		cfg.TrackingBaseURL,
	)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	publisher, err := bus.NewKafkaPublisher(cfg.Brokers())
	if err != nil {
		return fmt.Errorf("kafka publisher init failed: %w", err)
	}
	defer publisher.Close()

	escalator, err := bus.NewDeadLetterEscalator(publisher, logger)
	if err != nil {
		return fmt.Errorf("dead letter escalator init failed: %w", err)
	}
	escalator.SetOnEscalated(metrics.IncDeadLettered)

	highConsumer, err := bus.NewKafkaConsumer(cfg.Brokers(), bus.HighPriorityGroup(cfg.HighSessionTimeout(), cfg.HighHeartbeatInterval()))
	if err != nil {
		return fmt.Errorf("high priority consumer init failed: %w", err)
	}
	defer highConsumer.Close()

	stdConsumer, err := bus.NewKafkaConsumer(cfg.Brokers(), bus.StandardPriorityGroup(cfg.StdSessionTimeout(), cfg.StdHeartbeatInterval()))
	if err != nil {
		return fmt.Errorf("standard priority consumer init failed: %w", err)
	}
	defer stdConsumer.Close()

	highService, err := service.NewConsumerService(
		highConsumer,
		[]processor.Processor{
			processor.NewUserProcessor(store, directory, dispatcher, escalator, metrics, logger),
			processor.NewOrderProcessor(store, directory, dispatcher, escalator, metrics, logger),
		},
		escalator,
		highPriorityFailureReason,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("high priority consumer service init failed: %w", err)
	}

	stdService, err := service.NewConsumerService(
		stdConsumer,
		[]processor.Processor{
			processor.NewProductProcessor(store, dispatcher, escalator, metrics, logger),
			processor.NewRecommendationProcessor(store, directory, escalator, metrics, logger),
		},
		escalator,
		standardPriorityFailureReason,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("standard priority consumer service init failed: %w", err)
	}

	promoBroadcaster, err := service.NewPromoBroadcaster(
		store,
		directory,
		dispatcher,
		cfg.PromoInterval(),
		cfg.PromoSampleSize,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("promo broadcaster init failed: %w", err)
	}

	recommendationFlusher, err := service.NewRecommendationFlusher(
		store,
		directory,
		dispatcher,
		cfg.FlushInterval(),
		cfg.FlushScanLimit,
		cfg.FlushConcurrency,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("recommendation flusher init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterNotificationRoutes(app, store, cfg.TrackingBaseURL, logger); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("high priority consumer started", zap.Strings("brokers", cfg.Brokers()))
		return highService.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("standard priority consumer started")
		return stdService.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("promo broadcaster started", zap.Duration("interval", cfg.PromoInterval()))
		return promoBroadcaster.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("recommendation flusher started", zap.Duration("interval", cfg.FlushInterval()))
		return recommendationFlusher.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("http api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.Shutdown()
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("notification pipeline stopped")
		return nil
	}
	return err
}
