package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/winbid/internal/adapters/api"
	"github.com/floroz/winbid/internal/adapters/cache"
	"github.com/floroz/winbid/internal/adapters/database"
	"github.com/floroz/winbid/internal/adapters/events"
	"github.com/floroz/winbid/internal/config"
	"github.com/floroz/winbid/internal/domain/bids"
	"github.com/floroz/winbid/internal/domain/contact"
	"github.com/floroz/winbid/internal/domain/products"
	"github.com/floroz/winbid/internal/domain/registration"
	"github.com/floroz/winbid/internal/domain/users"
	"github.com/floroz/winbid/internal/domain/userstats"
	"github.com/floroz/winbid/internal/domain/winners"
	"github.com/floroz/winbid/internal/metrics"
	"github.com/floroz/winbid/internal/notify"
	"github.com/floroz/winbid/internal/ratelimit"
	"github.com/floroz/winbid/pkg/auth"
	pkgdb "github.com/floroz/winbid/pkg/database"
	pkgevents "github.com/floroz/winbid/pkg/events"
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
	if err := cfg.ValidateAPI(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. RabbitMQ carries auction events and, with the amqp backend, emails
	amqpConn, err := amqp091.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	publisher, err := events.NewRabbitMQPublisher(amqpConn, pkgevents.ExchangeAuctionEvents, events.ExchangeNotifications)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.Notify.Backend == config.NotifyAMQP {
		mailer = events.NewAMQPMailer(publisher)
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.Notify.Timeout, logger)

	// 3. Auth keys
	privPEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		logger.Error("Failed to read private key", "error", err)
		os.Exit(1)
	}
	pubPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		logger.Error("Failed to read public key", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSigner(privPEM, pubPEM, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Error("Failed to create token signer", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 4. Sessions and rate limit windows live in Redis or in process memory
	var (
		sessions registration.SessionStore
		limiter  ratelimit.Limiter
	)
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("Redis Connected")
		sessions = cache.NewRedisSessionStore(rdb, logger)
		limiter = cache.NewRedisLimiter(rdb)
	default:
		memSessions := registration.NewMemoryStore(time.Now)
		memLimiter := ratelimit.NewMemoryLimiter()
		g.Go(func() error { return memSessions.Run(gctx, cfg.Registration.SweepInterval) })
		g.Go(func() error { return memLimiter.Run(gctx, cfg.Registration.SweepInterval) })
		sessions = memSessions
		limiter = memLimiter
	}

	// 5. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 6. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.Database.LockTimeout)
	bidRepo := database.NewPostgresBidRepository(pool)
	productRepo := database.NewPostgresProductRepository(pool)
	winnerRepo := database.NewPostgresWinnerRepository(pool)
	userRepo := database.NewPostgresUserRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 7. Initialize Services (Domain Layer)
	auctionService := bids.NewAuctionService(
		txManager,
		bidRepo,
		productRepo,
		winnerRepo,
		database.NewPostgresWishlistRepository(),
		outboxRepo,
		logger,
		bids.WithRecorder(collector),
	)
	userService := users.NewService(userRepo, signer, logger)
	registrationService := registration.NewService(
		sessions,
		userRepo,
		txManager,
		outboxRepo,
		signer,
		dispatcher,
		registration.Config{
			SessionTTL:  cfg.Registration.SessionTTL,
			MaxAttempts: cfg.Registration.MaxVerifyAttempts,
		},
		logger,
		registration.WithLimiter(limiter),
	)
	statsService := userstats.NewService(database.NewPostgresUserStatsRepository(pool), txManager, userRepo, dispatcher, logger)
	contactService := contact.NewService(database.NewPostgresContactRepository(pool), dispatcher, cfg.Notify.AdminEmail, logger)

	deps := api.Deps{
		Logger:         logger,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		Signer:         signer,
		SecureCookie:   cfg.Auth.CookieSecure,
		Bids:           auctionService,
		Products:       products.NewService(productRepo),
		Winners:        winners.NewService(winnerRepo),
		Users:          userService,
		Stats:          statsService,
		Registration:   registrationService,
		Contact:        contactService,
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = limiter
		deps.Throttle = api.NewThrottle(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst)
		g.Go(func() error { return deps.Throttle.Run(gctx, time.Minute) })
	}
	router := api.NewRouter(deps)

	// 8. Start Outbox Relay
	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		cfg.Outbox.BatchSize,
		cfg.Outbox.Interval,
		pkgevents.ExchangeAuctionEvents,
		logger,
		pkgevents.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		pkgevents.WithRetention(cfg.Outbox.Retention),
	)
	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return outboxRelay.Run(gctx)
	})

	// 9. Start Server
	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h2c.NewHandler(router, &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("Starting WinBid API", "addr", cfg.Server.Addr, "cache", cfg.Cache.Backend, "notify", cfg.Notify.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("Pending emails were dropped", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("API stopped", "error", err)
		os.Exit(1)
	}
}
