package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/api"
	"github.com/irfndi/oracle-alpha-go/internal/api/handlers"
	"github.com/irfndi/oracle-alpha-go/internal/config"
	"github.com/irfndi/oracle-alpha-go/internal/correlation"
	"github.com/irfndi/oracle-alpha-go/internal/database"
	"github.com/irfndi/oracle-alpha-go/internal/ingest"
	"github.com/irfndi/oracle-alpha-go/internal/leaderboard"
	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/logging"
	"github.com/irfndi/oracle-alpha-go/internal/metrics"
	"github.com/irfndi/oracle-alpha-go/internal/middleware"
	"github.com/irfndi/oracle-alpha-go/internal/notify"
	"github.com/irfndi/oracle-alpha-go/internal/pricefeed"
	"github.com/irfndi/oracle-alpha-go/internal/refresher"
	"github.com/irfndi/oracle-alpha-go/internal/reliability"
	"github.com/irfndi/oracle-alpha-go/internal/sector"
	"github.com/irfndi/oracle-alpha-go/internal/sources"
	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
	"github.com/irfndi/oracle-alpha-go/internal/timeseries"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config.yaml still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, otlpLogger := logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
	if hook := otlpLogger.LogrusHook("oracle-alpha-go"); hook != nil {
		logrusLogger.AddHook(hook)
	}
	defer func() {
		if err := otlpLogger.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown log exporter: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.InitTelemetryWithProvider(ctx, &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	}, logger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	accessLog := logging.NewStandardLoggerFromSlog(logger.WithComponent("http"))
	a, err := newApp(ctx, cfg, logrusLogger, accessLog, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()

	logger.LogBusinessEvent("stores_ready", map[string]interface{}{
		"tracked_calls":  a.ledger.Len(),
		"tracked_tokens": a.store.Len(),
		"snapshots":      a.snapshotter != nil,
		"kafka":          a.consumer != nil,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	workers := a.start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(telemetry.ServiceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	reason := "signal received"
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		reason = "server error"
		logrusLogger.WithError(err).Error("HTTP server failed")
	}
	logger.LogShutdown(telemetry.ServiceName, reason)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Error("Server forced to shutdown")
	}
	workers.Wait()
	a.flush(shutdownCtx)

	logrusLogger.Info("Server exited gracefully")
	return nil
}

// app holds the wired components and the background workers that run
// alongside the HTTP server.
type app struct {
	router      *gin.Engine
	ledger      *ledger.Ledger
	store       *timeseries.Store
	refresher   *refresher.Refresher
	snapshotter *database.Snapshotter
	consumer    *ingest.KafkaConsumer
	cfg         *config.Config
	logger      *logrus.Logger
	closers     []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, accessLog middleware.APIRequestLogger, reg *prometheus.Registry) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	recorder := metrics.New(reg)

	a.store = timeseries.NewStore(logger, timeseries.WithRetention(cfg.Scoring.Retention))
	a.ledger = ledger.New(logger, ledger.WithPolicy(cfg.Scoring.Status))
	scorer := reliability.NewScorer(a.ledger, cfg.Scoring.Reliability, logger)
	engine := correlation.NewEngine(a.store, cfg.Correlation, logger)
	sectors := sector.NewAggregator(a.store, engine, cfg.Correlation.CorrelatedThreshold, logger)
	tracker := sources.NewTracker(a.ledger, scorer, logger)
	ingestor := ingest.NewIngestor(a.store, a.ledger, tracker, scorer, recorder, logger)

	// Interfaces stay nil for disabled services so health reports them as
	// disabled rather than unhealthy.
	var dbHealth, redisHealth handlers.HealthChecker

	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		dbHealth = db

		repo := database.NewCallRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.snapshotter = database.NewSnapshotter(a.ledger, repo, cfg.Database.SnapshotInterval, logger)
		if _, err := a.snapshotter.Restore(ctx); err != nil {
			logger.WithError(err).Warn("Failed to restore call ledger, starting empty")
		}
	}

	client := pricefeed.NewClient(cfg.PriceFeed, recorder, logger)
	var source pricefeed.Source = pricefeed.NewBreakerSource(client, pricefeed.BreakerConfig{
		Name:                "price-feed",
		ConsecutiveFailures: cfg.PriceFeed.BreakerFailures,
		Timeout:             cfg.PriceFeed.BreakerTimeout,
	}, logger)

	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		redisHealth = rdb
		source = pricefeed.NewCachedSource(source, rdb.Client, cfg.Redis.QuoteTTL, logger)
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, scorer, recorder, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.refresher = refresher.New(a.ledger, a.store, source, refresher.Config{
		Interval:      cfg.Refresh.Interval,
		MinUpdateAge:  cfg.Refresh.MinUpdateAge,
		FetchInterval: cfg.Refresh.FetchInterval,
		Burst:         cfg.Refresh.Burst,
		QueueSize:     cfg.Refresh.QueueSize,
	}, logger,
		refresher.WithObserver(recorder),
		refresher.WithPassHook(func(ctx context.Context, _ refresher.Report) {
			if _, err := notifier.CheckIgnored(ctx); err != nil {
				logger.WithError(err).Warn("Failed to send ignore alerts")
			}
		}),
	)

	if cfg.Kafka.Enabled {
		consumer, err := ingest.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, ingestor, logger,
			ingest.WithConsumerRetry(cfg.Kafka.MaxRetries, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax))
		if err != nil {
			a.close()
			return nil, err
		}
		a.consumer = consumer
		a.closers = append(a.closers, func() { _ = consumer.Close() })
	}

	expiry, _ := time.ParseDuration(cfg.Security.JWTExpiry)
	auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret, expiry)
	admin, err := middleware.NewAdminMiddleware(cfg.Server.AdminAPIKey, cfg.Server.AdminAPIKeyHash, cfg.Security.BcryptCost, auth, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid admin credentials: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(accessLog))
	router.Use(gin.Recovery())
	router.Use(middleware.TelemetryMiddleware(cfg.Telemetry.ServiceName))
	router.Use(recorder.GinMiddleware())

	api.SetupRoutes(router, api.Handlers{
		Health:   handlers.NewHealthHandler(dbHealth, redisHealth, client, a.store, a.ledger),
		Analysis: handlers.NewAnalysisHandler(a.store, engine, sectors),
		KOL:      handlers.NewKOLHandler(scorer, leaderboard.NewAssembler(scorer, scorer.Policy()), tracker),
		Admin:    handlers.NewAdminHandler(a.store, a.ledger, tracker, ingestor, a.refresher, auth, logger),
	}, admin, recorder.Handler())
	a.router = router

	return a, nil
}

// start launches the background workers. They stop when ctx is done.
func (a *app) start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	if a.cfg.Refresh.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.refresher.Run(ctx)
		}()
	}

	if a.snapshotter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.snapshotter.Run(ctx)
		}()
	}

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()
	}

	return &wg
}

// flush writes a final snapshot so a restart resumes from the latest state.
func (a *app) flush(ctx context.Context) {
	if a.snapshotter == nil {
		return
	}
	if err := a.snapshotter.Flush(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to save final call snapshot")
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
