package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/refresh/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) refresh.Store {
		return New()
	})
}

func TestSweepDropsExpiredAfterRetention(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := s.Create(ctx, "u-1", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	keep, err := s.Create(ctx, "u-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if removed := s.Sweep(now, time.Hour); removed != 1 {
		t.Fatalf("expected 1 swept record, got %d", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 remaining record, got %d", s.Len())
	}
	if _, err := s.Get(ctx, keep.TokenID); err != nil {
		t.Fatalf("live record swept: %v", err)
	}
}

func TestRevokeChainRespectsBound(t *testing.T) {
	s := New(WithMaxChainLength(2))
	ctx := context.Background()

	a, err := s.Create(ctx, "u-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cur := a
	for i := 0; i < 4; i++ {
		id, _ := refresh.NewTokenID()
		cur, err = s.CompareAndRotate(ctx, cur.TokenID, cur.Version, id, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("rotate %d: %v", i, err)
		}
	}

	n, err := s.RevokeChain(ctx, a.TokenID)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected traversal to stop at 2 records, got %d", n)
	}
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, "u-1", time.Now().Add(time.Hour)); !refresh.IsUnavailable(err) {
		t.Fatalf("expected canceled create to count as unavailable, got %v", err)
	}
}

func TestRecordsHeldByRef(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.Create(ctx, "u-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bID, _ := refresh.NewTokenID()
	if _, err := s.CompareAndRotate(ctx, a.TokenID, 0, bID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, rec := range s.records {
		if ref == a.TokenID || ref == bID || rec.TokenID != "" {
			t.Fatalf("bearer token held at rest: %q %+v", ref, rec)
		}
	}
}
