package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/refresh"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureStoreUnavailable
	LoginFailureIssueAccess
)

// LoginUser is the flow-local view of an authenticated principal.
type LoginUser struct {
	UserID   string
	Username string
}

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure          LoginFailureKind
	Err              error
	User             LoginUser
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type LoginRefreshStore interface {
	Create(ctx context.Context, userID string, expiresAt time.Time) (*refresh.Record, error)
}

// LoginDeps captures login flow dependencies. The rate hooks are optional.
type LoginDeps struct {
	Store        LoginRefreshStore
	Now          func() time.Time
	RefreshTTL   time.Duration
	StoreTimeout time.Duration

	VerifyCredentials func(ctx context.Context, identifier, password string) (LoginUser, error)
	IssueAccess       func(userID string, now time.Time) (string, time.Time, error)
	ClientIP          func(context.Context) string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string, string) error
	RateLimited        error

	Warn func(string, ...any)
}

// RunLogin verifies credentials, creates the first record of a new chain and
// issues the first access token.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier, ip); err != nil {
			return LoginResult{Failure: rateFailure(err, deps.RateLimited), Err: err}
		}
	}

	user, err := deps.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if deps.IncrementLoginRate != nil {
			if rerr := deps.IncrementLoginRate(ctx, identifier, ip); rerr != nil {
				if deps.RateLimited != nil && errors.Is(rerr, deps.RateLimited) {
					return LoginResult{Failure: LoginFailureRateLimited, Err: rerr}
				}
				if deps.Warn != nil {
					deps.Warn("gosession: login attempt counter update failed", "error", rerr)
				}
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, identifier, ip); err != nil && deps.Warn != nil {
			deps.Warn("gosession: login attempt counter reset failed", "error", err)
		}
	}

	now := deps.Now()
	access, accessExp, err := deps.IssueAccess(user.UserID, now)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, User: user}
	}

	createCtx, cancel := withStoreTimeout(ctx, deps.StoreTimeout)
	rec, err := deps.Store.Create(createCtx, user.UserID, now.Add(deps.RefreshTTL))
	cancel()
	if err != nil {
		return LoginResult{Failure: LoginFailureStoreUnavailable, Err: err, User: user}
	}

	return LoginResult{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rec.TokenID,
		RefreshExpiresAt: rec.ExpiresAt,
	}
}

func rateFailure(err, rateLimited error) LoginFailureKind {
	if rateLimited != nil && errors.Is(err, rateLimited) {
		return LoginFailureRateLimited
	}
	return LoginFailureStoreUnavailable
}
