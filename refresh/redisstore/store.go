// Package redisstore implements [refresh.Store] on Redis hashes.
//
// Each record lives under "<prefix>:rt:<ref>", where ref is [refresh.Ref] of
// the token id, with the fields uid, st, succ, prev, ver, exp and cat. The
// succ and prev links hold refs too, so no key or value carries a bearer
// token. Every mutation is a single Lua script, so the compare-and-rotate and
// chain revocation steps are atomic with respect to other clients.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/redis/go-redis/v9"
)

// DefaultRetention keeps rotated records around after their expiry so a late
// replay is still recognised as a replay rather than an unknown token.
const DefaultRetention = 24 * time.Hour

// Options configures a [Store].
type Options struct {
	// Prefix namespaces every key. Defaults to "gs".
	Prefix string
	// Retention is added to a record's expiry to compute its key TTL.
	Retention time.Duration
	// MaxChainLength bounds RevokeChain traversal.
	MaxChainLength int
	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// Store is a Redis-backed [refresh.Store].
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	maxChain  int
	now       func() time.Time
}

// New creates a Store on the given client.
func New(rdb redis.UniversalClient, opts Options) *Store {
	s := &Store{
		redis:     rdb,
		prefix:    opts.Prefix,
		retention: opts.Retention,
		maxChain:  opts.MaxChainLength,
		now:       opts.Now,
	}
	if s.prefix == "" {
		s.prefix = "gs"
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.maxChain <= 0 {
		s.maxChain = refresh.DefaultMaxChainLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) keyPrefix() string {
	return s.prefix + ":rt:"
}

func (s *Store) key(ref string) string {
	return s.keyPrefix() + ref
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", refresh.ErrUnavailable, err)
}

// Create implements [refresh.Store].
//
//	Performance: 1 EVALSHA.
func (s *Store) Create(ctx context.Context, userID string, expiresAt time.Time) (*refresh.Record, error) {
	id, err := refresh.NewTokenID()
	if err != nil {
		return nil, err
	}
	createdAt := s.now()
	ref := refresh.Ref(id)

	created, err := createLua.Run(ctx, s.redis,
		[]string{s.key(ref)},
		userID,
		expiresAt.UnixMilli(),
		createdAt.UnixMilli(),
		s.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, unavailable(err)
	}
	if created != 1 {
		return nil, refresh.ErrConflict
	}

	return &refresh.Record{
		TokenID:   id,
		Ref:       ref,
		UserID:    userID,
		Status:    refresh.StatusActive,
		CreatedAt: time.UnixMilli(createdAt.UnixMilli()),
		ExpiresAt: time.UnixMilli(expiresAt.UnixMilli()),
	}, nil
}

// Get implements [refresh.Store].
//
//	Performance: 1 HGETALL.
func (s *Store) Get(ctx context.Context, tokenID string) (*refresh.Record, error) {
	rec, err := s.GetByRef(ctx, refresh.Ref(tokenID))
	if err != nil {
		return nil, err
	}
	rec.TokenID = tokenID
	return rec, nil
}

// GetByRef implements [refresh.Store].
//
//	Performance: 1 HGETALL.
func (s *Store) GetByRef(ctx context.Context, ref string) (*refresh.Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(ref)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, refresh.ErrNotFound
	}
	return decode(ref, fields)
}

// CompareAndRotate implements [refresh.Store].
//
//	Performance: 1 EVALSHA.
func (s *Store) CompareAndRotate(
	ctx context.Context,
	tokenID string,
	expectedVersion uint64,
	newTokenID string,
	newExpiresAt time.Time,
) (*refresh.Record, error) {
	createdAt := s.now()
	ref, newRef := refresh.Ref(tokenID), refresh.Ref(newTokenID)

	reply, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(ref), s.key(newRef)},
		strconv.FormatUint(expectedVersion, 10),
		newRef,
		ref,
		newExpiresAt.UnixMilli(),
		createdAt.UnixMilli(),
		s.retention.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	status, userID, err := parseRotateReply(reply)
	if err != nil {
		return nil, err
	}

	switch status {
	case rotateStatusOK:
	case rotateStatusNotFound:
		return nil, refresh.ErrNotFound
	case rotateStatusRotated:
		return nil, refresh.ErrAlreadyRotated
	case rotateStatusRevoked:
		return nil, refresh.ErrRevoked
	case rotateStatusMismatch, rotateStatusCollision:
		return nil, refresh.ErrConflict
	default:
		return nil, fmt.Errorf("%w: unexpected rotate status %d", refresh.ErrCorrupt, status)
	}

	return &refresh.Record{
		TokenID:        newTokenID,
		Ref:            newRef,
		UserID:         userID,
		Status:         refresh.StatusActive,
		PredecessorRef: ref,
		CreatedAt:      time.UnixMilli(createdAt.UnixMilli()),
		ExpiresAt:      time.UnixMilli(newExpiresAt.UnixMilli()),
	}, nil
}

// parseRotateReply splits the {status[, uid]} reply of the rotate script.
func parseRotateReply(reply []any) (int64, string, error) {
	if len(reply) == 0 {
		return 0, "", fmt.Errorf("%w: empty rotate reply", refresh.ErrCorrupt)
	}
	status, ok := reply[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("%w: rotate status %v", refresh.ErrCorrupt, reply[0])
	}
	if status != rotateStatusOK {
		return status, "", nil
	}
	if len(reply) < 2 {
		return 0, "", fmt.Errorf("%w: rotate reply without user id", refresh.ErrCorrupt)
	}
	userID, ok := reply[1].(string)
	if !ok || userID == "" {
		return 0, "", fmt.Errorf("%w: missing user id", refresh.ErrCorrupt)
	}
	return status, userID, nil
}

// RevokeChain implements [refresh.Store].
//
//	Performance: 1 EVALSHA, O(chain length) server-side.
func (s *Store) RevokeChain(ctx context.Context, tokenID string) (int, error) {
	ref := refresh.Ref(tokenID)
	n, err := revokeChainLua.Run(ctx, s.redis,
		[]string{s.key(ref)},
		s.keyPrefix(),
		ref,
		s.maxChain,
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, refresh.ErrNotFound
	}
	return int(n), nil
}

// Ping implements [refresh.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func decode(ref string, fields map[string]string) (*refresh.Record, error) {
	st, err := refresh.ParseStatus(fields["st"])
	if err != nil {
		return nil, err
	}
	ver, err := strconv.ParseUint(fields["ver"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q", refresh.ErrCorrupt, fields["ver"])
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry %q", refresh.ErrCorrupt, fields["exp"])
	}
	cat, err := strconv.ParseInt(fields["cat"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at %q", refresh.ErrCorrupt, fields["cat"])
	}
	uid := fields["uid"]
	if uid == "" {
		return nil, fmt.Errorf("%w: missing user id", refresh.ErrCorrupt)
	}

	return &refresh.Record{
		Ref:            ref,
		UserID:         uid,
		Status:         st,
		SuccessorRef:   fields["succ"],
		PredecessorRef: fields["prev"],
		CreatedAt:      time.UnixMilli(cat),
		ExpiresAt:      time.UnixMilli(exp),
		Version:        ver,
	}, nil
}
