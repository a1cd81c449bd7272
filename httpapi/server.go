package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/gateway"
)

// Sessions is the engine surface used by the handlers. *goSession.Engine
// satisfies it.
type Sessions interface {
	Login(ctx context.Context, creds goSession.Credentials) (*goSession.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*goSession.TokenPair, error)
	Logout(ctx context.Context, refreshToken, accessToken string) error
	Validate(ctx context.Context, accessToken string) (*goSession.AuthResult, error)
	Ping(ctx context.Context) error
}

// UserDirectory resolves display names for authenticated user ids.
type UserDirectory interface {
	Username(userID string) string
}

// MessageHistory serves private conversation pages. *gateway.MemoryHistory
// satisfies it.
type MessageHistory interface {
	ListPrivate(ctx context.Context, userID, friendID string, page int) ([]gateway.Message, error)
}

// Options configures a [Server].
type Options struct {
	Cookie             goSession.CookieConfig
	RequireOriginCheck bool
	AllowedOrigins     []string

	// Users is optional. Without it login by bearer token returns no
	// username.
	Users UserDirectory
	// Metrics, Chat and History are mounted when non-nil.
	Metrics http.Handler
	Chat    http.Handler
	History MessageHistory

	Logger *slog.Logger
	Now    func() time.Time
}

// OptionsFromConfig copies the cookie and origin settings of an engine
// configuration.
func OptionsFromConfig(cfg goSession.Config) Options {
	return Options{
		Cookie:             cfg.Cookie,
		RequireOriginCheck: cfg.Security.RequireOriginCheck,
		AllowedOrigins:     append([]string(nil), cfg.Security.AllowedOrigins...),
	}
}

// Server holds the HTTP handlers.
type Server struct {
	sessions Sessions
	opts     Options
	origins  map[string]struct{}
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Server. Cookie settings left empty fall back to the engine
// defaults.
func New(sessions Sessions, opts Options) *Server {
	defaults := goSession.DefaultConfig().Cookie
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = defaults.Name
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = defaults.Path
	}

	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		sessions: sessions,
		opts:     opts,
		origins:  origins,
		logger:   logger,
		now:      now,
	}
}

// originAllowed accepts an allowed Origin or any X-Requested-With value.
// Cross-site form posts can set neither.
func (s *Server) originAllowed(r *http.Request) bool {
	if !s.opts.RequireOriginCheck {
		return true
	}
	if strings.TrimSpace(r.Header.Get("X-Requested-With")) != "" {
		return true
	}
	_, ok := s.origins[normalizeOrigin(r.Header.Get("Origin"))]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
}
