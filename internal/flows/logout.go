package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

type LogoutRefreshStore interface {
	RevokeChain(ctx context.Context, tokenID string) (int, error)
}

// LogoutDeps captures logout flow dependencies. Blacklist is optional.
type LogoutDeps struct {
	Store        LogoutRefreshStore
	StoreTimeout time.Duration
	Now          func() time.Time
	VerifyAccess func(string, time.Time) (time.Time, error)
	Blacklist    func(ctx context.Context, token string, ttl time.Duration) error
	Warn         func(string, ...any)
}

// LogoutResult reports what logout changed.
type LogoutResult struct {
	Revoked int
	Err     error
}

// RunLogout revokes the chain of the presented refresh token and, when an
// access token is presented, blacklists it for its remaining lifetime.
// Unknown or malformed refresh tokens are not an error.
func RunLogout(ctx context.Context, refreshToken, accessToken string, deps LogoutDeps) LogoutResult {
	var res LogoutResult

	if tokenID, err := refresh.ParseTokenID(refreshToken); err == nil {
		revokeCtx, cancel := withStoreTimeout(context.WithoutCancel(ctx), deps.StoreTimeout)
		n, err := deps.Store.RevokeChain(revokeCtx, tokenID)
		cancel()
		if err != nil && !errors.Is(err, refresh.ErrNotFound) {
			return LogoutResult{Err: err}
		}
		res.Revoked = n
	}

	if accessToken == "" || deps.Blacklist == nil || deps.VerifyAccess == nil {
		return res
	}
	now := deps.Now()
	exp, err := deps.VerifyAccess(accessToken, now)
	if err != nil {
		// Already unusable; nothing to blacklist.
		return res
	}
	if ttl := exp.Sub(now); ttl > 0 {
		if err := deps.Blacklist(ctx, accessToken, ttl); err != nil && deps.Warn != nil {
			deps.Warn("gosession: access token blacklist write failed", "error", err)
		}
	}
	return res
}
