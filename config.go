package goSession

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
)

// Config is the engine configuration. It is cloned by [Builder.WithConfig]
// and immutable once the engine is built.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Cookie   CookieConfig
	Security SecurityConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	// Leeway is the clock skew tolerated on expiry. Capped at jwt.MaxLeeway.
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh token rotation.
type RefreshConfig struct {
	RefreshTTL time.Duration
	// ReplayGrace treats a rotated token presented again within this window
	// of its successor's creation as a lost race rather than a replay, as
	// long as the successor has not been used. Zero, the default, treats
	// every reuse as a replay.
	ReplayGrace time.Duration
	// StoreTimeout bounds every refresh store call.
	StoreTimeout   time.Duration
	MaxChainLength int
	// Retention keeps rotated records readable after expiry so late replays
	// are still detected. Used by the Redis backend.
	Retention time.Duration
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the refresh cookie written by the HTTP layer.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig configures login throttling, the access blacklist and the
// refresh origin check.
type SecurityConfig struct {
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration

	EnableAccessBlacklist bool
	// BlacklistFailOpen accepts access tokens when the blacklist cannot be
	// read. Off by default.
	BlacklistFailOpen bool

	RequireOriginCheck bool
	AllowedOrigins     []string
}

// StoreConfig holds backend key naming.
type StoreConfig struct {
	RedisPrefix string
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each sink call. Zero leaves sink calls unbounded.
	SinkTimeout time.Duration
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with production defaults. Key
// material is left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        5 * time.Second,
		},
		Refresh: RefreshConfig{
			RefreshTTL:     7 * 24 * time.Hour,
			ReplayGrace:    0,
			StoreTimeout:   2 * time.Second,
			MaxChainLength: refresh.DefaultMaxChainLength,
			Retention:      24 * time.Hour,
		},
		Cookie: CookieConfig{
			Name:     "refreshToken",
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:   true,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			EnableAccessBlacklist: false,
			BlacklistFailOpen:     false,
			RequireOriginCheck:    false,
		},
		Store: StoreConfig{
			RedisPrefix: "gs",
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	if cfg.Security.AllowedOrigins != nil {
		out.Security.AllowedOrigins = append([]string(nil), cfg.Security.AllowedOrigins...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > jwt.MaxLeeway {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.RefreshTTL <= 0 {
		return errors.New("Refresh RefreshTTL must be > 0")
	}
	if c.Refresh.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Refresh RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Refresh.ReplayGrace < 0 {
		return errors.New("Refresh ReplayGrace must be >= 0")
	}
	if c.Refresh.ReplayGrace > time.Minute {
		return errors.New("Refresh ReplayGrace must be <= 1m")
	}
	if c.Refresh.StoreTimeout <= 0 {
		return errors.New("Refresh StoreTimeout must be > 0")
	}
	if c.Refresh.MaxChainLength <= 0 {
		return errors.New("Refresh MaxChainLength must be > 0")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name is required")
	}
	if !strings.HasPrefix(c.Cookie.Path, "/") {
		return errors.New("Cookie Path must start with /")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0 when login throttle is enabled")
		}
	}
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return errors.New("EnableIPThrottle requires EnableLoginThrottle")
	}
	for _, origin := range c.Security.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return errors.New("AllowedOrigins must not contain empty entries")
		}
	}

	// Store
	if strings.ContainsAny(c.Store.RedisPrefix, " \t\n") {
		return errors.New("Store RedisPrefix must not contain whitespace")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	return nil
}
