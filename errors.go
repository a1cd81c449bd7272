package goSession

import "errors"

var (
	// ErrTokenUnknown is returned when the presented refresh token does not
	// name a stored record.
	ErrTokenUnknown = errors.New("refresh token unknown")
	// ErrTokenExpired is returned for a refresh record past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenRevoked is returned for a refresh record in a revoked chain.
	ErrTokenRevoked = errors.New("refresh token revoked")
	// ErrTokenReplayed is returned when an already rotated refresh token is
	// presented again. The whole chain is revoked before it is returned.
	ErrTokenReplayed = errors.New("refresh token replay detected")
	// ErrTokenRaceLost is returned to the losers of concurrent refreshes of
	// the same token.
	ErrTokenRaceLost = errors.New("refresh token already used")
	// ErrStoreUnavailable is returned when the refresh store cannot be reached
	// in time. It is retryable.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrAuthFailed is the single login failure visible to clients.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrLoginRateLimited is returned when the login throttle denies an attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTokenInvalid is returned by Validate for unusable access tokens.
	ErrTokenInvalid = errors.New("invalid access token")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrTokenIssue is returned when an access token cannot be signed.
	ErrTokenIssue = errors.New("access token issue failed")
)

// IsRefreshRejection reports whether err is a refresh failure that must
// surface to the client as an undifferentiated 401.
func IsRefreshRejection(err error) bool {
	return errors.Is(err, ErrTokenUnknown) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrTokenReplayed) ||
		errors.Is(err, ErrTokenRaceLost)
}
