package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Validator checks an access token. *goSession.Engine satisfies it.
type Validator interface {
	Validate(ctx context.Context, accessToken string) (*goSession.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*goSession.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goSession.AuthResult)
	return res, ok
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	res, ok := AuthResultFromContext(ctx)
	if !ok || res == nil {
		return ""
	}
	return res.UserID
}

// WithAuthResult stores res in ctx. Used by transports that authenticate
// outside of [Guard].
func WithAuthResult(ctx context.Context, res *goSession.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Options tunes [Guard].
type Options struct {
	// QueryParam, when set, names a query parameter that may carry the access
	// token. Browsers cannot set headers on WebSocket handshakes.
	QueryParam string
}

// Guard rejects requests without a valid access token with 401, and 503 when
// the blacklist cannot be read.
func Guard(v Validator, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := TokenFromRequest(r, opts.QueryParam)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := v.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, goSession.ErrStoreUnavailable) {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to queryParam when it is non-empty.
func TokenFromRequest(r *http.Request, queryParam string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if queryParam == "" {
		return "", false
	}
	token := strings.TrimSpace(r.URL.Query().Get(queryParam))
	return token, token != ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
