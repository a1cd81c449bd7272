package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/serverconfig"
	"github.com/MrEthical07/goSession/refresh/memstore"
	"github.com/MrEthical07/goSession/refresh/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenBackendMemorySweeps(t *testing.T) {
	cfg := serverconfig.Config{Store: serverconfig.Store{Backend: serverconfig.BackendMemory}}
	b, err := openBackend(context.Background(), cfg, goSession.DefaultConfig(), nil, discardLogger())
	require.NoError(t, err)
	defer b.close()

	store, ok := b.store.(*memstore.Store)
	require.True(t, ok)
	require.NotNil(t, b.sweep)

	now := time.Now()
	_, err = store.Create(context.Background(), "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "u1", now.Add(time.Hour))
	require.NoError(t, err)

	n, err := b.sweep(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestOpenBackendRedisHasNoSweep(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := serverconfig.Config{Store: serverconfig.Store{Backend: serverconfig.BackendRedis}}
	b, err := openBackend(context.Background(), cfg, goSession.DefaultConfig(), rdb, discardLogger())
	require.NoError(t, err)
	defer b.close()

	_, ok := b.store.(*redisstore.Store)
	assert.True(t, ok)
	assert.Nil(t, b.sweep)
	assert.NoError(t, b.store.Ping(context.Background()))
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	calls := make(chan time.Time, 8)
	sweep := func(_ context.Context, cutoff time.Time) (int64, error) {
		select {
		case calls <- cutoff:
		default:
		}
		return 0, errors.New("store down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runJanitor(ctx, sweep, 5*time.Millisecond, time.Hour, discardLogger())
		close(done)
	}()

	select {
	case cutoff := <-calls:
		assert.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor never swept")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRunJanitorNilSweepReturns(t *testing.T) {
	runJanitor(context.Background(), nil, time.Millisecond, 0, discardLogger())
}
