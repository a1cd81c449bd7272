// Command sessiond serves the session endpoints, the chat gateway and the
// metrics scrape endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gateway"
	"github.com/MrEthical07/goSession/httpapi"
	"github.com/MrEthical07/goSession/internal/serverconfig"
	"github.com/MrEthical07/goSession/internal/userstore"
	prometheusexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/password"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := serverconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %v\n", err)
		os.Exit(1)
	}
	cfg, err := serverconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sessiond exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverconfig.Config, logger *slog.Logger) error {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.NeedsRedis() {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Store.RedisAddr},
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.Store.RedisAddr)
	}

	backend, err := openBackend(ctx, cfg, engineCfg, rdb, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	users, err := userstore.New(hasher)
	if err != nil {
		return err
	}
	for _, seed := range cfg.Users {
		u, err := users.Add(seed)
		if err != nil {
			return fmt.Errorf("seed user %q: %w", seed.Username, err)
		}
		logger.Info("seeded user", "user_id", u.ID, "username", u.Username)
	}

	builder := goSession.New().
		WithConfig(engineCfg).
		WithCredentialVerifier(users).
		WithLogger(logger).
		WithRefreshStore(backend.store)
	if rdb != nil {
		builder.WithRedis(rdb)
	}
	if cfg.Audit.Enabled {
		builder.WithAuditSink(goSession.NewSlogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	history := gateway.NewMemoryHistory(cfg.Chat.HistoryPerConversation)
	hub := gateway.NewHub(gateway.HubOptions{Sink: history, Logger: logger.With("component", "gateway")})
	defer hub.Close()

	opts := httpapi.OptionsFromConfig(engineCfg)
	opts.Users = users
	opts.Logger = logger.With("component", "http")
	opts.Chat = gateway.Handler(hub, chatOriginCheck(cfg))
	opts.History = history
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheusexport.NewPrometheusExporter(engine).Handler()
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.New(engine, opts).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go runJanitor(ctx, backend.sweep, cfg.Store.SweepInterval, cfg.Store.Retention, logger.With("component", "janitor"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sessiond listening", "addr", cfg.Server.Addr, "store", cfg.Store.Backend, "env", cfg.Server.Environment)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg serverconfig.Log) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, hopts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, hopts))
}

// chatOriginCheck allows same-host upgrades when no origins are configured.
func chatOriginCheck(cfg serverconfig.Config) func(*http.Request) bool {
	if len(cfg.Security.AllowedOrigins) == 0 {
		return nil
	}
	return gateway.AllowOrigins(cfg.Security.AllowedOrigins)
}
