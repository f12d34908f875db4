// Command credguard-sweeper runs the credguard housekeeping loop against the
// shared Redis and PostgreSQL backends and exposes /metrics and /healthz.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/credguard"
	sentrysink "github.com/MrEthical07/credguard/auditsink/sentry"
	"github.com/MrEthical07/credguard/metrics/export/prometheus"
	"github.com/MrEthical07/credguard/userstore/postgres"
)

type settings struct {
	cfg               credguard.Config
	databaseURL       string
	sentryDSN         string
	sentryEnvironment string
	metricsAddr       string
	logLevel          string
}

func main() {
	_ = godotenv.Load()

	s, err := loadSettings()
	if err != nil {
		_, _ = os.Stderr.WriteString("credguard-sweeper: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := newLogger(s.logLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("credguard-sweeper: logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(s, logger); err != nil {
		logger.Error("sweeper exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(s settings, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              s.sentryDSN,
			Environment:      s.sentryEnvironment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	if s.databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := postgres.Open(pingCtx, s.databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := postgres.New(pool)
	if err := users.Migrate(pingCtx); err != nil {
		return err
	}

	builder := credguard.New().
		WithConfig(s.cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(logger)
	if s.sentryDSN != "" {
		builder = builder.WithAuditSink(sentrysink.New(sentry.CurrentHub(), nil))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(engine).Handler())
	mux.HandleFunc("GET /healthz", healthHandler(rdb))

	srv := &http.Server{
		Addr:              s.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", s.metricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func loadSettings() (settings, error) {
	cfg, err := credguard.LoadConfigFile(os.Getenv("CREDGUARD_CONFIG"))
	if err != nil {
		return settings{}, err
	}

	if v := env("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := env("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := env("JWT_SIGNING_KEY"); v != "" {
		cfg.Access.PrivateKey = v
	}
	cfg.Sweep.Enabled = true
	cfg.Audit.Enabled = env("SENTRY_DSN") != ""

	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	return settings{
		cfg:               cfg,
		databaseURL:       env("DATABASE_URL"),
		sentryDSN:         env("SENTRY_DSN"),
		sentryEnvironment: envOr("SENTRY_ENVIRONMENT", "production"),
		metricsAddr:       envOr("METRICS_ADDR", ":9464"),
		logLevel:          strings.ToLower(env("LOG_LEVEL")),
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func healthHandler(rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func envOr(name, fallback string) string {
	if v := env(name); v != "" {
		return v
	}
	return fallback
}
