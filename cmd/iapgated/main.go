package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"iapgate/catalog"
	"iapgate/config"
	"iapgate/observability/logging"
	telemetry "iapgate/observability/otel"
	"iapgate/services/settlement"
	"iapgate/services/validator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to iapgated configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("iapgated stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(logging.Options{
		Service:    cfg.Service,
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	headers := cfg.Telemetry.Headers
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); raw != "" {
		headers = telemetry.ParseHeaders(raw)
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	store := settlement.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate receipts: %w", err)
	}

	products, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	registry, err := validator.FromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure validators: %w", err)
	}

	opts := []settlement.Option{settlement.WithLogger(logger)}
	var rdb *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		opts = append(opts, settlement.WithLocker(settlement.NewRedisLocker(rdb, cfg.Redis.LockTTL.Duration)))
	}
	gate := settlement.NewGate(store, registry, products, opts...)

	retryer := settlement.NewRetryer(gate, store, settlement.RetryerConfig{
		Interval:       cfg.Settlement.RetryInterval.Duration,
		StaleAfter:     cfg.Settlement.StaleAfter.Duration,
		Workers:        cfg.Settlement.Workers,
		BatchSize:      cfg.Settlement.BatchSize,
		AttemptTimeout: cfg.Settlement.AttemptTimeout.Duration,
		Logger:         logger,
	})
	go retryer.Run(ctx)

	checks := []healthCheck{{name: "database", fn: sqlDB.PingContext}}
	if rdb != nil {
		checks = append(checks, healthCheck{name: "redis", fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	srv := &http.Server{
		Addr:              cfg.OpsListen,
		Handler:           newOpsRouter(registry.Stores(), checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening",
			slog.String("addr", cfg.OpsListen),
			slog.Int("products", len(products.Products())),
			slog.Int("stores", len(registry.Stores())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	}
	logger.Info("shutting down iapgated")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func openDatabase(cfg config.Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: settlement.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}
