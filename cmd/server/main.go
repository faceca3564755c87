// Package main provides the entry point for the notification service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/config"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/database"
	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/handler"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/health"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/metrics"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/server"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/service"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/tenant"
)

const (
	schemaCacheSize  = 10000
	schemaCacheSweep = time.Minute
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	migrateTenants := flag.String("migrate-tenants", "", "comma separated existing tenant schemas to create notification tables in before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting notification service",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	if err := run(cfg, strings.TrimSpace(*migrateTenants), logger); err != nil {
		logger.Error("notification service stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("notification service shutdown complete")
}

func run(cfg *config.Config, migrateTenants string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}

	schemaCache := store.NewInMemoryCache(schemaCacheSize, schemaCacheSweep, logger)
	defer schemaCache.Stop()

	router := tenant.NewRouter(pool, tenant.Options{
		AcquireTimeout: cfg.Database.AcquireTimeout,
		SchemaCacheTTL: cfg.Database.SchemaCacheTTL,
		Cache:          schemaCache,
		Metrics:        m,
	}, logger)
	defer router.Close()

	if migrateTenants != "" {
		if err := provisionTenants(ctx, router, strings.Split(migrateTenants, ","), logger); err != nil {
			return err
		}
	}

	idempotencyStore, err := newIdempotencyStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer idempotencyStore.Close()

	audience := model.Audience{IncludeAdmins: cfg.Notifications.BroadcastIncludesAdmins}
	notificationStore := store.NewPostgresNotificationStore()

	notifier := service.NewNotifier(router, notificationStore, m, logger)
	reconciler := service.NewReconciler(router, notificationStore, audience, m, logger)
	queryService := service.NewQueryService(router, notificationStore, audience, logger)
	idempotencyService := service.NewIdempotencyService(idempotencyStore, cfg.Notifications.IdempotencyTTL, logger)

	errorHandler := apperrors.NewHandler(logger)
	handlers := handler.NewHandlers(notifier, reconciler, queryService, idempotencyService, errorHandler, logger)
	healthChecker := health.NewHealthChecker(router, idempotencyStore, logger)

	httpServer := server.NewServer(cfg, handlers, healthChecker, m, errorHandler, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, m.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server started",
				zap.Int("port", cfg.Metrics.Port),
				zap.String("path", cfg.Metrics.Path),
			)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown HTTP server", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", zap.Error(err))
			}
		}
		return nil
	})

	return g.Wait()
}

// provisionTenants creates the notification tables in each listed schema.
func provisionTenants(ctx context.Context, router *tenant.Router, tenants []string, logger *zap.Logger) error {
	for _, tenantID := range tenants {
		tenantID = strings.TrimSpace(tenantID)
		if tenantID == "" {
			continue
		}

		err := router.WithSession(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
			return store.ApplySchema(ctx, tx)
		})
		if err != nil {
			return fmt.Errorf("failed to provision tenant %s: %w", tenantID, err)
		}

		logger.Info("tenant schema provisioned", zap.String("tenant_id", tenantID))
	}
	return nil
}

// newIdempotencyStore picks Redis when enabled and an in-process store otherwise.
func newIdempotencyStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (store.IdempotencyStore, error) {
	if !cfg.Enabled {
		logger.Warn("redis disabled, idempotency keys are kept in memory")
		return store.NewMemoryIdempotencyStore(), nil
	}

	redisStore, err := store.NewRedisIdempotencyStore(ctx, cfg.Host, cfg.Port, cfg.Password, cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return redisStore, nil
}

// initLogger initializes the zap logger.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
