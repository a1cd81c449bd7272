package goSession

import (
	"context"
	"time"
)

// Credentials is the login request.
type Credentials struct {
	UsernameOrEmail string
	Password        string
}

// Principal is an authenticated user as reported by a [CredentialVerifier].
type Principal struct {
	UserID   string
	Username string
}

// CredentialVerifier checks a password for a username or email. Any error
// is reported to clients as [ErrAuthFailed].
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, usernameOrEmail, password string) (Principal, error)
}

// CredentialVerifierFunc adapts a function to [CredentialVerifier].
type CredentialVerifierFunc func(ctx context.Context, usernameOrEmail, password string) (Principal, error)

func (f CredentialVerifierFunc) VerifyCredentials(ctx context.Context, id, pw string) (Principal, error) {
	return f(ctx, id, pw)
}

// TokenPair is an access token plus the refresh token that succeeds the one
// presented. RefreshToken is the value of the refresh cookie.
type TokenPair struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	User Principal
	TokenPair
}

// AuthResult is returned by [Engine.Validate].
type AuthResult struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
