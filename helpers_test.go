package goSession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Refresh.ReplayGrace = 2 * time.Second
	cfg.Security.EnableLoginThrottle = false
	cfg.Metrics.Enabled = true
	return cfg
}

var errTestBadCredentials = errors.New("bad credentials")

func testVerifier() CredentialVerifier {
	return CredentialVerifierFunc(func(_ context.Context, id, pw string) (Principal, error) {
		if id == "testuser" && pw == testPassword {
			return Principal{UserID: "user-1", Username: "testuser"}, nil
		}
		return Principal{}, errTestBadCredentials
	})
}

func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) *Engine {
	t.Helper()
	b := New().WithConfig(cfg).WithCredentialVerifier(testVerifier())
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func withClock(c *testClock) func(*Builder) {
	return func(b *Builder) { b.WithClock(c.Now) }
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func mustLogin(t *testing.T, engine *Engine) *LoginResult {
	t.Helper()
	res, err := engine.Login(context.Background(), Credentials{UsernameOrEmail: "testuser", Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return res
}

func mustRefresh(t *testing.T, engine *Engine, token string) *TokenPair {
	t.Helper()
	pair, err := engine.Refresh(context.Background(), token)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	return pair
}
