package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/floroz/winbid/internal/adapters/database"
	"github.com/floroz/winbid/internal/adapters/events"
	"github.com/floroz/winbid/internal/config"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/notify"
	pkgdb "github.com/floroz/winbid/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		defaults := config.Defaults()
		defaults.NewLogger().Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitMQ.URL == "" {
		logger.Error("rabbitmq.url is not set")
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize Postgres Connection Pool
	dbConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		logger.Error("Unable to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	// 3. Winner emails go out through the configured mailer
	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.Notify.Backend == config.NotifyAMQP {
		publisher, err := events.NewRabbitMQPublisher(amqpConn, events.ExchangeNotifications)
		if err != nil {
			logger.Error("Failed to create RabbitMQ publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		mailer = events.NewAMQPMailer(publisher)
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.Notify.Timeout, logger)

	// 4. Initialize Dependencies
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.Database.LockTimeout)
	statsService := userstats.NewService(
		database.NewPostgresUserStatsRepository(pool),
		txManager,
		database.NewPostgresUserRepository(pool),
		dispatcher,
		logger,
	)

	// 5. Start Consumer
	consumer := events.NewEventConsumer(amqpConn, statsService, logger)
	logger.Info("Starting event consumer...", "queue", events.WorkerQueue)
	runErr := consumer.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("Pending emails were dropped", "error", err)
	}

	if runErr != nil && ctx.Err() == nil {
		logger.Error("Consumer failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("Event consumer stopped")
}
