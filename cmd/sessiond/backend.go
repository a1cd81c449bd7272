package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/serverconfig"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/refresh/memstore"
	"github.com/MrEthical07/goSession/refresh/pgstore"
	"github.com/MrEthical07/goSession/refresh/redisstore"
	"github.com/redis/go-redis/v9"
)

// sweepFunc removes records whose expiry precedes cutoff.
type sweepFunc func(ctx context.Context, cutoff time.Time) (int64, error)

type backend struct {
	store refresh.Store
	// sweep is nil for backends that expire records on their own.
	sweep sweepFunc
	close func()
}

func openBackend(ctx context.Context, cfg serverconfig.Config, ec goSession.Config, rdb redis.UniversalClient, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case serverconfig.BackendRedis:
		return &backend{
			store: redisstore.New(rdb, redisstore.Options{
				Prefix:         ec.Store.RedisPrefix,
				Retention:      ec.Refresh.Retention,
				MaxChainLength: ec.Refresh.MaxChainLength,
			}),
			close: func() {},
		}, nil

	case serverconfig.BackendPostgres:
		db, err := pgstore.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pgstore.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres refresh store ready")
		store := pgstore.New(db, pgstore.Options{MaxChainLength: ec.Refresh.MaxChainLength})
		return &backend{
			store: store,
			sweep: store.DeleteExpired,
			close: closeDB(db, logger),
		}, nil

	default:
		store := memstore.New(memstore.WithMaxChainLength(ec.Refresh.MaxChainLength))
		logger.Warn("using in-process refresh store, sessions do not survive restarts")
		return &backend{
			store: store,
			sweep: func(_ context.Context, cutoff time.Time) (int64, error) {
				return int64(store.Sweep(cutoff, 0)), nil
			},
			close: func() {},
		}, nil
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn("close postgres", "error", err)
		}
	}
}

// runJanitor sweeps expired records every interval until ctx is done.
func runJanitor(ctx context.Context, sweep sweepFunc, interval, retention time.Duration, logger *slog.Logger) {
	if sweep == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepOnce(ctx, sweep, now.Add(-retention), logger)
		}
	}
}

func sweepOnce(ctx context.Context, sweep sweepFunc, cutoff time.Time, logger *slog.Logger) {
	n, err := sweep(ctx, cutoff)
	if err != nil {
		logger.Warn("sweep failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("swept expired refresh records", "removed", n)
	}
}
