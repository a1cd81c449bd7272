package stores

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBlacklistTest(t *testing.T) (*AccessBlacklist, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewAccessBlacklist(rdb, "t"), mr
}

func TestBlacklistAddContains(t *testing.T) {
	bl, mr := newBlacklistTest(t)
	ctx := context.Background()

	if ok, err := bl.Contains(ctx, "tok-a"); err != nil || ok {
		t.Fatalf("fresh token must not be listed: ok=%v err=%v", ok, err)
	}
	if err := bl.Add(ctx, "tok-a", time.Minute); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ok, err := bl.Contains(ctx, "tok-a"); err != nil || !ok {
		t.Fatalf("expected listed token: ok=%v err=%v", ok, err)
	}
	if ok, _ := bl.Contains(ctx, "tok-b"); ok {
		t.Fatal("unrelated token must not be listed")
	}

	for _, k := range mr.Keys() {
		if strings.Contains(k, "tok-a") {
			t.Fatalf("plaintext token leaked into key %q", k)
		}
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := bl.Contains(ctx, "tok-a"); ok {
		t.Fatal("entry must expire with the token")
	}
}

func TestBlacklistSkipsExpiredTokens(t *testing.T) {
	bl, mr := newBlacklistTest(t)
	if err := bl.Add(context.Background(), "tok", 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("expected no keys, got %d", n)
	}
}

func TestBlacklistRedisDown(t *testing.T) {
	bl, mr := newBlacklistTest(t)
	mr.Close()

	if _, err := bl.Contains(context.Background(), "tok"); !errors.Is(err, ErrBlacklistUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if err := bl.Add(context.Background(), "tok", time.Minute); !errors.Is(err, ErrBlacklistUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
