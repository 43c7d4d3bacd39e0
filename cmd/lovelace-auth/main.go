// Command lovelace-auth serves the authentication API.
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

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/httpapi"
	"github.com/aloneinabyss/lovelace/metrics/export/prometheus"
	"github.com/aloneinabyss/lovelace/notify"
	"github.com/aloneinabyss/lovelace/observability"
	"github.com/aloneinabyss/lovelace/store/gormstore"
	"github.com/aloneinabyss/lovelace/store/memstore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg serverConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		return err
	}
	defer observability.FlushSentry()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	users, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var notifier lovelace.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kn, err := notify.NewKafkaNotifier(notify.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return err
		}
		defer kn.Close()
		notifier = kn
		logger.Info("publishing notifications to kafka", "topic", cfg.KafkaTopic)
	}

	auditSink := lovelace.MultiSink{lovelace.NewSlogSink(logger)}
	if cfg.SentryDSN != "" {
		auditSink = append(auditSink, observability.NewSentrySink(nil))
	}

	engine, err := lovelace.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithUserProvider(users).
		WithNotifier(notifier).
		WithAuditSink(auditSink).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.OTelInterval > 0 {
		shutdown, err := startOTelMetrics(engine, stdoutReader(os.Stderr, cfg.OTelInterval))
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("otel metrics shutdown failed", "error", err)
			}
		}()
		logger.Info("otel metrics enabled", "interval", cfg.OTelInterval)
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.New(engine, logger).Routes())
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openUserStore picks PostgreSQL when DATABASE_URL is set, SQLite when SQLITE_PATH is set and
// the in-memory store otherwise.
func openUserStore(ctx context.Context, cfg serverConfig, logger *slog.Logger) (lovelace.UserProvider, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = cfg.SQLitePath
	}
	if dsn == "" {
		if cfg.Environment == "production" {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		logger.Warn("no database configured, accounts are kept in memory")
		return memstore.New(), nil
	}

	db, err := gormstore.Open(dsn)
	if err != nil {
		return nil, err
	}
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
