// Package storetest holds the behavioral suite every [refresh.Store]
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) refresh.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateThenGet", func(t *testing.T) { testCreateThenGet(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("RotateSuccess", func(t *testing.T) { testRotateSuccess(t, newStore(t)) })
	t.Run("RotateStaleVersion", func(t *testing.T) { testRotateStaleVersion(t, newStore(t)) })
	t.Run("RotateRotated", func(t *testing.T) { testRotateRotated(t, newStore(t)) })
	t.Run("RotateRevoked", func(t *testing.T) { testRotateRevoked(t, newStore(t)) })
	t.Run("RotateUnknown", func(t *testing.T) { testRotateUnknown(t, newStore(t)) })
	t.Run("RotateSuccessorCollision", func(t *testing.T) { testRotateSuccessorCollision(t, newStore(t)) })
	t.Run("ConcurrentRotateSingleWinner", func(t *testing.T) { testConcurrentRotate(t, newStore(t)) })
	t.Run("RevokeChainBothDirections", func(t *testing.T) { testRevokeChain(t, newStore(t)) })
	t.Run("RevokeChainUnknown", func(t *testing.T) { testRevokeChainUnknown(t, newStore(t)) })
	t.Run("RevokeChainRacesRotate", func(t *testing.T) { testRevokeRacesRotate(t, newStore(t)) })
	t.Run("LinksAreRefs", func(t *testing.T) { testLinksAreRefs(t, newStore(t)) })
}

func expiry() time.Time {
	return time.Now().Add(time.Hour).Truncate(time.Millisecond)
}

func mustID(t *testing.T) string {
	t.Helper()
	id, err := refresh.NewTokenID()
	if err != nil {
		t.Fatalf("new token id: %v", err)
	}
	return id
}

func mustCreate(t *testing.T, s refresh.Store, userID string) *refresh.Record {
	t.Helper()
	rec, err := s.Create(context.Background(), userID, expiry())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func mustGet(t *testing.T, s refresh.Store, id string) *refresh.Record {
	t.Helper()
	rec, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

func mustRotate(t *testing.T, s refresh.Store, from *refresh.Record) *refresh.Record {
	t.Helper()
	next, err := s.CompareAndRotate(context.Background(), from.TokenID, from.Version, mustID(t), expiry())
	if err != nil {
		t.Fatalf("rotate %s: %v", from.TokenID, err)
	}
	return next
}

func testCreateThenGet(t *testing.T, s refresh.Store) {
	exp := expiry()
	rec, err := s.Create(context.Background(), "u-1", exp)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := refresh.ParseTokenID(rec.TokenID); err != nil {
		t.Fatalf("token id %q is not a valid id: %v", rec.TokenID, err)
	}
	if rec.Status != refresh.StatusActive || rec.Version != 0 {
		t.Fatalf("unexpected new record state: %+v", rec)
	}

	got := mustGet(t, s, rec.TokenID)
	if got.UserID != "u-1" || got.Status != refresh.StatusActive || got.Version != 0 {
		t.Fatalf("unexpected stored record: %+v", got)
	}
	if got.SuccessorRef != "" || got.PredecessorRef != "" {
		t.Fatalf("fresh record must not be linked: %+v", got)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry mismatch: got %v want %v", got.ExpiresAt, exp)
	}
}

func testGetUnknown(t *testing.T, s refresh.Store) {
	_, err := s.Get(context.Background(), mustID(t))
	if !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testRotateSuccess(t *testing.T, s refresh.Store) {
	rec := mustCreate(t, s, "u-1")
	newID := mustID(t)
	exp := expiry()

	next, err := s.CompareAndRotate(context.Background(), rec.TokenID, 0, newID, exp)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.TokenID != newID || next.UserID != "u-1" || next.Status != refresh.StatusActive {
		t.Fatalf("unexpected successor: %+v", next)
	}
	if next.Version != 0 || next.PredecessorRef != refresh.Ref(rec.TokenID) {
		t.Fatalf("successor must start at version 0 linked to its predecessor: %+v", next)
	}

	old := mustGet(t, s, rec.TokenID)
	if old.Status != refresh.StatusRotated || old.Version != 1 || old.SuccessorRef != refresh.Ref(newID) {
		t.Fatalf("unexpected rotated record: %+v", old)
	}
	stored := mustGet(t, s, newID)
	if stored.Status != refresh.StatusActive || !stored.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected stored successor: %+v", stored)
	}
}

func testRotateStaleVersion(t *testing.T, s refresh.Store) {
	rec := mustCreate(t, s, "u-1")
	newID := mustID(t)

	_, err := s.CompareAndRotate(context.Background(), rec.TokenID, 7, newID, expiry())
	if !errors.Is(err, refresh.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got := mustGet(t, s, rec.TokenID)
	if got.Status != refresh.StatusActive || got.Version != 0 || got.SuccessorRef != "" {
		t.Fatalf("failed rotation mutated the record: %+v", got)
	}
	if _, err := s.Get(context.Background(), newID); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("failed rotation created a successor: %v", err)
	}
}

func testRotateRotated(t *testing.T, s refresh.Store) {
	rec := mustCreate(t, s, "u-1")
	mustRotate(t, s, rec)

	_, err := s.CompareAndRotate(context.Background(), rec.TokenID, 1, mustID(t), expiry())
	if !errors.Is(err, refresh.ErrAlreadyRotated) {
		t.Fatalf("expected ErrAlreadyRotated, got %v", err)
	}
	if got := mustGet(t, s, rec.TokenID); got.Version != 1 {
		t.Fatalf("rejected rotation changed version: %+v", got)
	}
}

func testRotateRevoked(t *testing.T, s refresh.Store) {
	rec := mustCreate(t, s, "u-1")
	if _, err := s.RevokeChain(context.Background(), rec.TokenID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err := s.CompareAndRotate(context.Background(), rec.TokenID, 1, mustID(t), expiry())
	if !errors.Is(err, refresh.ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func testRotateUnknown(t *testing.T, s refresh.Store) {
	_, err := s.CompareAndRotate(context.Background(), mustID(t), 0, mustID(t), expiry())
	if !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testRotateSuccessorCollision(t *testing.T, s refresh.Store) {
	a := mustCreate(t, s, "u-1")
	b := mustCreate(t, s, "u-2")

	_, err := s.CompareAndRotate(context.Background(), a.TokenID, 0, b.TokenID, expiry())
	if !errors.Is(err, refresh.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := mustGet(t, s, a.TokenID); got.Status != refresh.StatusActive || got.Version != 0 {
		t.Fatalf("collision mutated the record: %+v", got)
	}
	if got := mustGet(t, s, b.TokenID); got.UserID != "u-2" || got.PredecessorRef != "" {
		t.Fatalf("collision overwrote the existing record: %+v", got)
	}
}

func testConcurrentRotate(t *testing.T, s refresh.Store) {
	rec := mustCreate(t, s, "u-1")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		newID := mustID(t)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.CompareAndRotate(context.Background(), rec.TokenID, 0, newID, expiry())
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, refresh.ErrAlreadyRotated), errors.Is(err, refresh.ErrConflict):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
	if got := mustGet(t, s, rec.TokenID); got.Version != 1 || got.Status != refresh.StatusRotated {
		t.Fatalf("expected version 1 after concurrent rotation, got %+v", got)
	}
}

func testRevokeChain(t *testing.T, s refresh.Store) {
	a := mustCreate(t, s, "u-1")
	b := mustRotate(t, s, a)
	c := mustRotate(t, s, b)
	d := mustRotate(t, s, c)
	other := mustCreate(t, s, "u-1")

	n, err := s.RevokeChain(context.Background(), b.TokenID)
	if err != nil {
		t.Fatalf("revoke chain: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 revoked records, got %d", n)
	}
	for _, id := range []string{a.TokenID, b.TokenID, c.TokenID, d.TokenID} {
		if got := mustGet(t, s, id); got.Status != refresh.StatusRevoked {
			t.Fatalf("record %s not revoked: %+v", id, got)
		}
	}
	if got := mustGet(t, s, other.TokenID); got.Status != refresh.StatusActive {
		t.Fatalf("unrelated chain was revoked: %+v", got)
	}

	again, err := s.RevokeChain(context.Background(), d.TokenID)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if again != 0 {
		t.Fatalf("second revoke must be a no-op, revoked %d", again)
	}
}

func testRevokeChainUnknown(t *testing.T, s refresh.Store) {
	_, err := s.RevokeChain(context.Background(), mustID(t))
	if !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A rotation of the tail racing a revocation from the head must never leave
// a usable successor behind.
func testRevokeRacesRotate(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		a := mustCreate(t, s, "u-1")
		b := mustRotate(t, s, a)
		c := mustRotate(t, s, b)
		newID := mustID(t)

		var (
			wg        sync.WaitGroup
			rotateErr error
			revokeErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, rotateErr = s.CompareAndRotate(ctx, c.TokenID, c.Version, newID, expiry())
		}()
		go func() {
			defer wg.Done()
			<-start
			_, revokeErr = s.RevokeChain(ctx, a.TokenID)
		}()
		close(start)
		wg.Wait()

		if revokeErr != nil {
			t.Fatalf("round %d: revoke chain: %v", i, revokeErr)
		}
		ids := []string{a.TokenID, b.TokenID, c.TokenID}
		switch {
		case rotateErr == nil:
			ids = append(ids, newID)
		case errors.Is(rotateErr, refresh.ErrRevoked):
			if _, err := s.Get(ctx, newID); !errors.Is(err, refresh.ErrNotFound) {
				t.Fatalf("round %d: rejected rotation left a successor: %v", i, err)
			}
		default:
			t.Fatalf("round %d: unexpected rotate error: %v", i, rotateErr)
		}
		for _, id := range ids {
			if got := mustGet(t, s, id); got.Status != refresh.StatusRevoked {
				t.Fatalf("round %d: record %s survived revocation: %+v", i, id, got)
			}
		}
	}
}

func testLinksAreRefs(t *testing.T, s refresh.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "u-1")
	b := mustRotate(t, s, a)

	if a.Ref != refresh.Ref(a.TokenID) || b.Ref != refresh.Ref(b.TokenID) {
		t.Fatalf("records must carry the ref of their token: %+v %+v", a, b)
	}
	old := mustGet(t, s, a.TokenID)
	if old.SuccessorRef == b.TokenID || b.PredecessorRef == a.TokenID {
		t.Fatalf("links must not hold bearer values: %+v %+v", old, b)
	}

	succ, err := s.GetByRef(ctx, old.SuccessorRef)
	if err != nil {
		t.Fatalf("get by ref: %v", err)
	}
	if succ.Ref != b.Ref || succ.TokenID != "" || succ.Status != refresh.StatusActive {
		t.Fatalf("unexpected successor read by ref: %+v", succ)
	}
	if _, err := s.GetByRef(ctx, refresh.Ref(mustID(t))); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, a.Ref); !errors.Is(err, refresh.ErrNotFound) {
		t.Fatalf("a ref must not work as a bearer token, got %v", err)
	}
}
