// Package memstore is an in-process [refresh.Store] for tests, the load-test
// tool and single-instance development.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

// Store keeps refresh records in a map keyed by [refresh.Ref] and guarded by
// one mutex. Every operation holds the lock for its whole duration, which is
// what makes CompareAndRotate and RevokeChain atomic.
type Store struct {
	mu       sync.Mutex
	records  map[string]*refresh.Record
	now      func() time.Time
	maxChain int
}

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxChainLength bounds revocation traversal.
func WithMaxChainLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxChain = n
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:  make(map[string]*refresh.Record),
		now:      time.Now,
		maxChain: refresh.DefaultMaxChainLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements [refresh.Store].
func (s *Store) Create(ctx context.Context, userID string, expiresAt time.Time) (*refresh.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := refresh.NewTokenID()
	if err != nil {
		return nil, err
	}
	ref := refresh.Ref(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[ref]; exists {
		return nil, refresh.ErrConflict
	}
	rec := &refresh.Record{
		Ref:       ref,
		UserID:    userID,
		Status:    refresh.StatusActive,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}
	s.records[ref] = rec
	return withTokenID(rec, id), nil
}

// withTokenID copies rec and attaches the caller's bearer value.
func withTokenID(rec *refresh.Record, tokenID string) *refresh.Record {
	out := rec.Clone()
	out.TokenID = tokenID
	return out
}

// Get implements [refresh.Store].
func (s *Store) Get(ctx context.Context, tokenID string) (*refresh.Record, error) {
	rec, err := s.GetByRef(ctx, refresh.Ref(tokenID))
	if err != nil {
		return nil, err
	}
	rec.TokenID = tokenID
	return rec, nil
}

// GetByRef implements [refresh.Store].
func (s *Store) GetByRef(ctx context.Context, ref string) (*refresh.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ref]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	return rec.Clone(), nil
}

// CompareAndRotate implements [refresh.Store].
func (s *Store) CompareAndRotate(
	ctx context.Context,
	tokenID string,
	expectedVersion uint64,
	newTokenID string,
	newExpiresAt time.Time,
) (*refresh.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref, newRef := refresh.Ref(tokenID), refresh.Ref(newTokenID)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[ref]
	switch {
	case !ok:
		return nil, refresh.ErrNotFound
	case old.Status == refresh.StatusRotated:
		return nil, refresh.ErrAlreadyRotated
	case old.Status == refresh.StatusRevoked:
		return nil, refresh.ErrRevoked
	case old.Version != expectedVersion:
		return nil, refresh.ErrConflict
	}
	if _, taken := s.records[newRef]; taken {
		return nil, refresh.ErrConflict
	}

	old.Status = refresh.StatusRotated
	old.SuccessorRef = newRef
	old.Version++

	next := &refresh.Record{
		Ref:            newRef,
		UserID:         old.UserID,
		Status:         refresh.StatusActive,
		PredecessorRef: ref,
		CreatedAt:      s.now(),
		ExpiresAt:      newExpiresAt,
	}
	s.records[newRef] = next
	return withTokenID(next, newTokenID), nil
}

// RevokeChain implements [refresh.Store].
func (s *Store) RevokeChain(ctx context.Context, tokenID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start, ok := s.records[refresh.Ref(tokenID)]
	if !ok {
		return 0, refresh.ErrNotFound
	}

	visited := make(map[string]struct{}, 8)
	revoked := 0
	revoke := func(rec *refresh.Record) {
		visited[rec.Ref] = struct{}{}
		if rec.Status != refresh.StatusRevoked {
			rec.Status = refresh.StatusRevoked
			rec.Version++
			revoked++
		}
	}
	revoke(start)

	for cur := start; cur.PredecessorRef != "" && len(visited) < s.maxChain; {
		prev, ok := s.records[cur.PredecessorRef]
		if !ok {
			break
		}
		if _, seen := visited[prev.Ref]; seen {
			break
		}
		revoke(prev)
		cur = prev
	}
	for cur := start; cur.SuccessorRef != "" && len(visited) < s.maxChain; {
		next, ok := s.records[cur.SuccessorRef]
		if !ok {
			break
		}
		if _, seen := visited[next.Ref]; seen {
			break
		}
		revoke(next)
		cur = next
	}
	return revoked, nil
}

// Ping implements [refresh.Store].
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops records whose expiry plus retention lies before now and returns
// how many were removed.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for ref, rec := range s.records {
		if rec.ExpiresAt.Add(retention).Before(now) {
			delete(s.records, ref)
			removed++
		}
	}
	return removed
}
