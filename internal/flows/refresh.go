package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureUnknown
	RefreshFailureExpired
	RefreshFailureRevoked
	RefreshFailureReplayed
	RefreshFailureRaceLost
	RefreshFailureStoreUnavailable
	RefreshFailureIssueAccess
)

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	TokenID          string
	UserID           string
	Revoked          int
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type RefreshStore interface {
	Get(ctx context.Context, tokenID string) (*refresh.Record, error)
	GetByRef(ctx context.Context, ref string) (*refresh.Record, error)
	CompareAndRotate(
		ctx context.Context,
		tokenID string,
		expectedVersion uint64,
		newTokenID string,
		newExpiresAt time.Time,
	) (*refresh.Record, error)
	RevokeChain(ctx context.Context, tokenID string) (int, error)
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Store        RefreshStore
	Now          func() time.Time
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
	NewTokenID   func() (string, error)
	IssueAccess  func(userID string, now time.Time) (string, time.Time, error)
	Warn         func(string, ...any)

	// ReplayGrace, when positive, downgrades a ROTATED read to a lost race if
	// the immediate successor is still ACTIVE and was minted within the
	// window. Zero treats every ROTATED read as a replay.
	ReplayGrace time.Duration
}

// RunRefresh resolves one refresh attempt against the store.
//
// The read in the first step takes no lock. Whether a stale caller lost a race
// or replayed a consumed token is decided by the status it read combined with
// the outcome of the single CompareAndRotate call.
func RunRefresh(ctx context.Context, presented string, deps RefreshDeps) RefreshResult {
	tokenID, err := refresh.ParseTokenID(presented)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUnknown, Err: err}
	}
	now := deps.Now()

	getCtx, cancel := withStoreTimeout(ctx, deps.StoreTimeout)
	rec, err := deps.Store.Get(getCtx, tokenID)
	cancel()
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureUnknown, Err: err, TokenID: tokenID}
		}
		return RefreshResult{Failure: RefreshFailureStoreUnavailable, Err: err, TokenID: tokenID}
	}

	base := RefreshResult{TokenID: tokenID, UserID: rec.UserID}

	if rec.Expired(now) {
		base.Failure, base.Err = RefreshFailureExpired, errors.New("refresh record expired")
		return base
	}

	switch rec.Status {
	case refresh.StatusRevoked:
		base.Failure, base.Err = RefreshFailureRevoked, refresh.ErrRevoked
		return base
	case refresh.StatusRotated:
		if withinReplayGrace(ctx, rec, now, deps) {
			base.Failure, base.Err = RefreshFailureRaceLost, refresh.ErrAlreadyRotated
			return base
		}
		// The revocation must finish even if the caller goes away.
		revokeCtx, cancel := withStoreTimeout(context.WithoutCancel(ctx), deps.StoreTimeout)
		n, err := deps.Store.RevokeChain(revokeCtx, tokenID)
		cancel()
		if err != nil && !errors.Is(err, refresh.ErrNotFound) {
			if deps.Warn != nil {
				deps.Warn("gosession: chain revocation after replay failed", "error", err)
			}
			base.Failure, base.Err = RefreshFailureStoreUnavailable, err
			return base
		}
		base.Failure, base.Err, base.Revoked = RefreshFailureReplayed, refresh.ErrAlreadyRotated, n
		return base
	}

	// Issue before rotating so a signing fault never strands a rotated record.
	access, accessExp, err := deps.IssueAccess(rec.UserID, now)
	if err != nil {
		base.Failure, base.Err = RefreshFailureIssueAccess, err
		return base
	}

	newID, err := deps.NewTokenID()
	if err != nil {
		base.Failure, base.Err = RefreshFailureIssueAccess, err
		return base
	}
	newExp := now.Add(deps.RefreshTTL)

	casCtx, cancel := withStoreTimeout(context.WithoutCancel(ctx), deps.StoreTimeout)
	next, err := deps.Store.CompareAndRotate(casCtx, tokenID, rec.Version, newID, newExp)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrConflict), errors.Is(err, refresh.ErrAlreadyRotated):
			base.Failure = RefreshFailureRaceLost
		case errors.Is(err, refresh.ErrRevoked):
			base.Failure = RefreshFailureRevoked
		case errors.Is(err, refresh.ErrNotFound):
			base.Failure = RefreshFailureUnknown
		default:
			base.Failure = RefreshFailureStoreUnavailable
		}
		base.Err = err
		return base
	}

	base.AccessToken = access
	base.AccessExpiresAt = accessExp
	base.RefreshToken = next.TokenID
	base.RefreshExpiresAt = next.ExpiresAt
	return base
}

func withinReplayGrace(ctx context.Context, rec *refresh.Record, now time.Time, deps RefreshDeps) bool {
	if deps.ReplayGrace <= 0 || rec.SuccessorRef == "" {
		return false
	}
	getCtx, cancel := withStoreTimeout(ctx, deps.StoreTimeout)
	succ, err := deps.Store.GetByRef(getCtx, rec.SuccessorRef)
	cancel()
	if err != nil {
		return false
	}
	return succ.Status == refresh.StatusActive && now.Sub(succ.CreatedAt) <= deps.ReplayGrace
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
