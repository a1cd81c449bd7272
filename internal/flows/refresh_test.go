package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/refresh/memstore"
)

var flowNow = time.Unix(1_700_000_000, 0)

func testRefreshDeps(store RefreshStore) RefreshDeps {
	return RefreshDeps{
		Store:        store,
		Now:          func() time.Time { return flowNow },
		RefreshTTL:   7 * 24 * time.Hour,
		StoreTimeout: time.Second,
		NewTokenID:   refresh.NewTokenID,
		IssueAccess: func(userID string, now time.Time) (string, time.Time, error) {
			return "access-" + userID, now.Add(15 * time.Minute), nil
		},
	}
}

func newFlowStore() *memstore.Store {
	return memstore.New(memstore.WithClock(func() time.Time { return flowNow }))
}

func seed(t *testing.T, s refresh.Store, expiresAt time.Time) *refresh.Record {
	t.Helper()
	rec, err := s.Create(context.Background(), "u-1", expiresAt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

// stubStore lets individual tests script each store call.
type stubStore struct {
	get     func(ctx context.Context, id string) (*refresh.Record, error)
	byRef   func(ctx context.Context, ref string) (*refresh.Record, error)
	rotate  func(ctx context.Context, id string, ver uint64, newID string, exp time.Time) (*refresh.Record, error)
	revoke  func(ctx context.Context, id string) (int, error)
	mu      sync.Mutex
	revokes int
	gets    int
}

func (s *stubStore) Get(ctx context.Context, id string) (*refresh.Record, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.get(ctx, id)
}

func (s *stubStore) GetByRef(ctx context.Context, ref string) (*refresh.Record, error) {
	if s.byRef == nil {
		return nil, refresh.ErrNotFound
	}
	return s.byRef(ctx, ref)
}

func (s *stubStore) CompareAndRotate(ctx context.Context, id string, ver uint64, newID string, exp time.Time) (*refresh.Record, error) {
	return s.rotate(ctx, id, ver, newID, exp)
}

func (s *stubStore) RevokeChain(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	s.revokes++
	s.mu.Unlock()
	if s.revoke == nil {
		return 0, nil
	}
	return s.revoke(ctx, id)
}

func activeRecord(id string) *refresh.Record {
	return &refresh.Record{
		TokenID:   id,
		UserID:    "u-1",
		Status:    refresh.StatusActive,
		ExpiresAt: flowNow.Add(time.Hour),
	}
}

func TestRunRefreshSuccess(t *testing.T) {
	store := newFlowStore()
	rec := seed(t, store, flowNow.Add(time.Hour))

	res := RunRefresh(context.Background(), rec.TokenID, testRefreshDeps(store))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.AccessToken != "access-u-1" || res.UserID != "u-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RefreshToken == "" || res.RefreshToken == rec.TokenID {
		t.Fatalf("expected a new refresh token, got %q", res.RefreshToken)
	}
	if !res.RefreshExpiresAt.Equal(flowNow.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected refresh expiry %v", res.RefreshExpiresAt)
	}

	old, _ := store.Get(context.Background(), rec.TokenID)
	if old.Status != refresh.StatusRotated || old.Version != 1 || old.SuccessorRef != refresh.Ref(res.RefreshToken) {
		t.Fatalf("unexpected rotated record: %+v", old)
	}
}

func TestRunRefreshMalformedTokenSkipsStore(t *testing.T) {
	store := &stubStore{get: func(context.Context, string) (*refresh.Record, error) {
		t.Fatal("store must not be consulted for malformed tokens")
		return nil, nil
	}}
	for _, tok := range []string{"", "abc", "00000000-0000-0000-0000-000000000000"} {
		res := RunRefresh(context.Background(), tok, testRefreshDeps(store))
		if res.Failure != RefreshFailureUnknown {
			t.Fatalf("token %q: expected unknown, got %v", tok, res.Failure)
		}
	}
}

func TestRunRefreshUnknown(t *testing.T) {
	id, _ := refresh.NewTokenID()
	res := RunRefresh(context.Background(), id, testRefreshDeps(newFlowStore()))
	if res.Failure != RefreshFailureUnknown {
		t.Fatalf("expected unknown, got %v", res.Failure)
	}
}

func TestRunRefreshExpiredDoesNotMutate(t *testing.T) {
	store := newFlowStore()
	rec := seed(t, store, flowNow)

	res := RunRefresh(context.Background(), rec.TokenID, testRefreshDeps(store))
	if res.Failure != RefreshFailureExpired {
		t.Fatalf("expected expired, got %v", res.Failure)
	}
	got, _ := store.Get(context.Background(), rec.TokenID)
	if got.Status != refresh.StatusActive || got.Version != 0 || got.SuccessorRef != "" {
		t.Fatalf("expired refresh mutated the record: %+v", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expired refresh created records: %d", store.Len())
	}
}

func TestRunRefreshRevoked(t *testing.T) {
	store := newFlowStore()
	rec := seed(t, store, flowNow.Add(time.Hour))
	if _, err := store.RevokeChain(context.Background(), rec.TokenID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	res := RunRefresh(context.Background(), rec.TokenID, testRefreshDeps(store))
	if res.Failure != RefreshFailureRevoked {
		t.Fatalf("expected revoked, got %v", res.Failure)
	}
}

func TestRunRefreshReplayRevokesChain(t *testing.T) {
	store := newFlowStore()
	a := seed(t, store, flowNow.Add(time.Hour))
	deps := testRefreshDeps(store)

	first := RunRefresh(context.Background(), a.TokenID, deps)
	if first.Failure != RefreshFailureNone {
		t.Fatalf("first refresh: %v", first.Err)
	}

	res := RunRefresh(context.Background(), a.TokenID, deps)
	if res.Failure != RefreshFailureReplayed {
		t.Fatalf("expected replayed, got %v", res.Failure)
	}
	if res.Revoked != 2 {
		t.Fatalf("expected both chain records revoked, got %d", res.Revoked)
	}
	b, _ := store.Get(context.Background(), first.RefreshToken)
	if b.Status != refresh.StatusRevoked {
		t.Fatalf("successor survived replay: %+v", b)
	}
	if again := RunRefresh(context.Background(), first.RefreshToken, deps); again.Failure != RefreshFailureRevoked {
		t.Fatalf("expected successor refresh to fail as revoked, got %v", again.Failure)
	}
}

func TestRunRefreshReplayGrace(t *testing.T) {
	store := newFlowStore()
	a := seed(t, store, flowNow.Add(time.Hour))
	deps := testRefreshDeps(store)
	deps.ReplayGrace = 2 * time.Second

	first := RunRefresh(context.Background(), a.TokenID, deps)
	if first.Failure != RefreshFailureNone {
		t.Fatalf("first refresh: %v", first.Err)
	}

	res := RunRefresh(context.Background(), a.TokenID, deps)
	if res.Failure != RefreshFailureRaceLost {
		t.Fatalf("expected a fresh rotation to count as a lost race, got %v", res.Failure)
	}
	if b, _ := store.Get(context.Background(), first.RefreshToken); b.Status != refresh.StatusActive {
		t.Fatalf("grace window revoked the successor: %+v", b)
	}

	// Once the successor itself rotated, presenting the grandparent is a replay.
	second := RunRefresh(context.Background(), first.RefreshToken, deps)
	if second.Failure != RefreshFailureNone {
		t.Fatalf("second refresh: %v", second.Err)
	}
	if res := RunRefresh(context.Background(), a.TokenID, deps); res.Failure != RefreshFailureReplayed {
		t.Fatalf("expected replay, got %v", res.Failure)
	}
	if c, _ := store.Get(context.Background(), second.RefreshToken); c.Status != refresh.StatusRevoked {
		t.Fatalf("chain head survived replay: %+v", c)
	}
}

func TestRunRefreshRaceLostDoesNotRevoke(t *testing.T) {
	for _, casErr := range []error{refresh.ErrConflict, refresh.ErrAlreadyRotated} {
		store := &stubStore{
			get: func(_ context.Context, id string) (*refresh.Record, error) { return activeRecord(id), nil },
			rotate: func(context.Context, string, uint64, string, time.Time) (*refresh.Record, error) {
				return nil, casErr
			},
		}
		id, _ := refresh.NewTokenID()
		res := RunRefresh(context.Background(), id, testRefreshDeps(store))
		if res.Failure != RefreshFailureRaceLost {
			t.Fatalf("%v: expected race lost, got %v", casErr, res.Failure)
		}
		if store.revokes != 0 {
			t.Fatalf("%v: lost race must not revoke the chain", casErr)
		}
	}
}

func TestRunRefreshCASOutcomeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want RefreshFailureKind
	}{
		{refresh.ErrRevoked, RefreshFailureRevoked},
		{refresh.ErrNotFound, RefreshFailureUnknown},
		{refresh.ErrUnavailable, RefreshFailureStoreUnavailable},
		{context.DeadlineExceeded, RefreshFailureStoreUnavailable},
	}
	for _, tc := range cases {
		store := &stubStore{
			get: func(_ context.Context, id string) (*refresh.Record, error) { return activeRecord(id), nil },
			rotate: func(context.Context, string, uint64, string, time.Time) (*refresh.Record, error) {
				return nil, tc.err
			},
		}
		id, _ := refresh.NewTokenID()
		if res := RunRefresh(context.Background(), id, testRefreshDeps(store)); res.Failure != tc.want {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, res.Failure)
		}
	}
}

func TestRunRefreshStoreUnavailableOnRead(t *testing.T) {
	store := &stubStore{get: func(context.Context, string) (*refresh.Record, error) {
		return nil, refresh.ErrUnavailable
	}}
	id, _ := refresh.NewTokenID()
	res := RunRefresh(context.Background(), id, testRefreshDeps(store))
	if res.Failure != RefreshFailureStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", res.Failure)
	}
}

func TestRunRefreshReplayRevocationFailureIsUnavailable(t *testing.T) {
	store := &stubStore{
		get: func(_ context.Context, id string) (*refresh.Record, error) {
			rec := activeRecord(id)
			rec.Status = refresh.StatusRotated
			rec.SuccessorRef = refresh.Ref("next")
			return rec, nil
		},
		revoke: func(context.Context, string) (int, error) { return 0, refresh.ErrUnavailable },
	}
	id, _ := refresh.NewTokenID()
	res := RunRefresh(context.Background(), id, testRefreshDeps(store))
	if res.Failure != RefreshFailureStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", res.Failure)
	}
}

func TestRunRefreshCASSurvivesCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var casCtxErr error
	store := &stubStore{
		get: func(_ context.Context, id string) (*refresh.Record, error) {
			cancel()
			return activeRecord(id), nil
		},
		rotate: func(ctx context.Context, id string, _ uint64, newID string, exp time.Time) (*refresh.Record, error) {
			casCtxErr = ctx.Err()
			return &refresh.Record{TokenID: newID, UserID: "u-1", Status: refresh.StatusActive, ExpiresAt: exp}, nil
		},
	}
	id, _ := refresh.NewTokenID()
	res := RunRefresh(ctx, id, testRefreshDeps(store))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if casCtxErr != nil {
		t.Fatalf("rotation saw caller cancellation: %v", casCtxErr)
	}
}

func TestRunRefreshIssueFailureLeavesRecordActive(t *testing.T) {
	store := newFlowStore()
	rec := seed(t, store, flowNow.Add(time.Hour))
	deps := testRefreshDeps(store)
	deps.IssueAccess = func(string, time.Time) (string, time.Time, error) {
		return "", time.Time{}, errors.New("signer offline")
	}

	res := RunRefresh(context.Background(), rec.TokenID, deps)
	if res.Failure != RefreshFailureIssueAccess {
		t.Fatalf("expected issue failure, got %v", res.Failure)
	}
	if got, _ := store.Get(context.Background(), rec.TokenID); got.Status != refresh.StatusActive || got.Version != 0 {
		t.Fatalf("issue failure rotated the record: %+v", got)
	}
}

func TestRunRefreshConcurrentSingleWinner(t *testing.T) {
	store := newFlowStore()
	rec := seed(t, store, flowNow.Add(time.Hour))
	deps := testRefreshDeps(store)
	deps.ReplayGrace = 2 * time.Second

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	results := make(chan RefreshResult, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			results <- RunRefresh(context.Background(), rec.TokenID, deps)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for res := range results {
		switch res.Failure {
		case RefreshFailureNone:
			success++
		case RefreshFailureRaceLost:
		default:
			t.Fatalf("unexpected refresh failure %v: %v", res.Failure, res.Err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	got, _ := store.Get(context.Background(), rec.TokenID)
	if got.Version != 1 {
		t.Fatalf("expected version to increase by exactly 1, got %d", got.Version)
	}
	if store.Len() != 2 {
		t.Fatalf("expected exactly one successor record, got %d records", store.Len())
	}
}
