// Package serverconfig loads the sessiond process configuration from the
// environment, optionally seeded from a .env file.
package serverconfig

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/userstore"
	"github.com/joho/godotenv"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server   Server
	Log      Log
	Store    Store
	Auth     Auth
	Security Security
	Audit    Audit
	Metrics  Metrics
	Chat     Chat
	Users    []userstore.Seed
}

type Chat struct {
	HistoryPerConversation int
}

type Server struct {
	Addr            string
	Environment     Environment
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

type Log struct {
	Level  string
	Format string
}

type Store struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresDSN   string
	SweepInterval time.Duration
	Retention     time.Duration
	Timeout       time.Duration
}

type Auth struct {
	SigningMethod  string
	Secret         string
	PrivateKeyFile string
	PublicKeyFile  string
	Issuer         string
	Audience       string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ReplayGrace    time.Duration
}

type Security struct {
	CookieSecure       bool
	CookieSameSite     http.SameSite
	CookieDomain       string
	LoginThrottle      bool
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	IPThrottle         bool
	AccessBlacklist    bool
	RequireOriginCheck bool
	AllowedOrigins     []string
}

type Audit struct {
	Enabled bool
}

type Metrics struct {
	Enabled    bool
	Histograms bool
}

// LoadDotEnv loads .env files into the environment when present. Variables
// already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var config Config
	var err error

	// Server configuration
	if config.Server.Addr, err = getEnvStringSafe("SERVER_ADDR", ":8080", false); err != nil {
		return config, fmt.Errorf("server addr config error: %w", err)
	}
	if config.Server.Environment, err = getEnvEnvironmentSafe("SERVER_ENVIRONMENT", EnvDevelopment, false); err != nil {
		return config, fmt.Errorf("server environment config error: %w", err)
	}
	if config.Server.ReadTimeout, err = getEnvDurationSafe("SERVER_READ_TIMEOUT", 15*time.Second, false); err != nil {
		return config, fmt.Errorf("server read timeout config error: %w", err)
	}
	if config.Server.WriteTimeout, err = getEnvDurationSafe("SERVER_WRITE_TIMEOUT", 15*time.Second, false); err != nil {
		return config, fmt.Errorf("server write timeout config error: %w", err)
	}
	if config.Server.IdleTimeout, err = getEnvDurationSafe("SERVER_IDLE_TIMEOUT", 60*time.Second, false); err != nil {
		return config, fmt.Errorf("server idle timeout config error: %w", err)
	}
	if config.Server.ShutdownTimeout, err = getEnvDurationSafe("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second, false); err != nil {
		return config, fmt.Errorf("server shutdown timeout config error: %w", err)
	}

	// Logging
	if config.Log.Level, err = getEnvStringSafe("LOG_LEVEL", "info", false); err != nil {
		return config, err
	}
	if config.Log.Format, err = getEnvStringSafe("LOG_FORMAT", "json", false); err != nil {
		return config, err
	}

	// Store configuration
	if config.Store.Backend, err = getEnvStringSafe("STORE_BACKEND", BackendMemory, false); err != nil {
		return config, err
	}
	if config.Store.RedisAddr, err = getEnvStringSafe("REDIS_ADDR", "localhost:6379", false); err != nil {
		return config, fmt.Errorf("Redis address config error: %w", err)
	}
	if config.Store.RedisPassword, err = getEnvStringSafe("REDIS_PASSWORD", "", false); err != nil {
		return config, fmt.Errorf("Redis password config error: %w", err)
	}
	if config.Store.RedisDB, err = getEnvIntSafe("REDIS_DB", 0, false); err != nil {
		return config, fmt.Errorf("Redis DB config error: %w", err)
	}
	if config.Store.RedisPrefix, err = getEnvStringSafe("REDIS_PREFIX", "gs", false); err != nil {
		return config, err
	}
	if config.Store.PostgresDSN, err = getEnvStringSafe("DB_URL", "", config.Store.Backend == BackendPostgres); err != nil {
		return config, fmt.Errorf("database URL config error: %w", err)
	}
	if config.Store.SweepInterval, err = getEnvDurationSafe("STORE_SWEEP_INTERVAL", 10*time.Minute, false); err != nil {
		return config, err
	}
	if config.Store.Retention, err = getEnvDurationSafe("REFRESH_RETENTION", 24*time.Hour, false); err != nil {
		return config, err
	}
	if config.Store.Timeout, err = getEnvDurationSafe("STORE_TIMEOUT", 2*time.Second, false); err != nil {
		return config, err
	}

	// Token configuration
	if config.Auth.SigningMethod, err = getEnvStringSafe("JWT_SIGNING_METHOD", "hs256", false); err != nil {
		return config, err
	}
	if config.Auth.Secret, err = getEnvStringSafe("JWT_SECRET", "", config.Auth.SigningMethod == "hs256"); err != nil {
		return config, fmt.Errorf("JWT secret config error: %w", err)
	}
	ed := config.Auth.SigningMethod == "ed25519"
	if config.Auth.PrivateKeyFile, err = getEnvStringSafe("JWT_PRIVATE_KEY_FILE", "", ed); err != nil {
		return config, err
	}
	if config.Auth.PublicKeyFile, err = getEnvStringSafe("JWT_PUBLIC_KEY_FILE", "", ed); err != nil {
		return config, err
	}
	if config.Auth.Issuer, err = getEnvStringSafe("JWT_ISSUER", "", false); err != nil {
		return config, err
	}
	if config.Auth.Audience, err = getEnvStringSafe("JWT_AUDIENCE", "", false); err != nil {
		return config, err
	}
	if config.Auth.AccessTTL, err = getEnvDurationSafe("ACCESS_TOKEN_TTL", 15*time.Minute, false); err != nil {
		return config, err
	}
	if config.Auth.RefreshTTL, err = getEnvDurationSafe("REFRESH_TOKEN_TTL", 7*24*time.Hour, false); err != nil {
		return config, err
	}
	if config.Auth.ReplayGrace, err = getEnvDurationSafe("REFRESH_REPLAY_GRACE", 2*time.Second, false); err != nil {
		return config, err
	}

	// Security configuration
	if config.Security.CookieSecure, err = getEnvBoolSafe("COOKIE_SECURE", true, false); err != nil {
		return config, err
	}
	if config.Security.CookieSameSite, err = getEnvSameSiteSafe("COOKIE_SAMESITE", http.SameSiteStrictMode); err != nil {
		return config, err
	}
	if config.Security.CookieDomain, err = getEnvStringSafe("COOKIE_DOMAIN", "", false); err != nil {
		return config, err
	}
	if config.Security.LoginThrottle, err = getEnvBoolSafe("LOGIN_THROTTLE_ENABLED", true, false); err != nil {
		return config, err
	}
	if config.Security.MaxLoginAttempts, err = getEnvIntSafe("LOGIN_MAX_ATTEMPTS", 5, false); err != nil {
		return config, err
	}
	if config.Security.LoginWindow, err = getEnvDurationSafe("LOGIN_WINDOW", 15*time.Minute, false); err != nil {
		return config, err
	}
	if config.Security.IPThrottle, err = getEnvBoolSafe("LOGIN_IP_THROTTLE_ENABLED", false, false); err != nil {
		return config, err
	}
	if config.Security.AccessBlacklist, err = getEnvBoolSafe("ACCESS_BLACKLIST_ENABLED", false, false); err != nil {
		return config, err
	}
	if config.Security.RequireOriginCheck, err = getEnvBoolSafe("REQUIRE_ORIGIN_CHECK", false, false); err != nil {
		return config, err
	}
	origins, err := getEnvStringSafe("CORS_ALLOWED_ORIGINS", "", false)
	if err != nil {
		return config, err
	}
	config.Security.AllowedOrigins = splitList(origins)

	// Observability
	if config.Audit.Enabled, err = getEnvBoolSafe("AUDIT_ENABLED", false, false); err != nil {
		return config, err
	}
	if config.Metrics.Enabled, err = getEnvBoolSafe("METRICS_ENABLED", true, false); err != nil {
		return config, err
	}
	if config.Metrics.Histograms, err = getEnvBoolSafe("METRICS_HISTOGRAMS", true, false); err != nil {
		return config, err
	}

	if config.Chat.HistoryPerConversation, err = getEnvIntSafe("CHAT_HISTORY_PER_CONVERSATION", 1000, false); err != nil {
		return config, err
	}

	seeds, err := getEnvStringSafe("SEED_USERS", "", false)
	if err != nil {
		return config, err
	}
	if config.Users, err = parseSeeds(seeds); err != nil {
		return config, fmt.Errorf("SEED_USERS config error: %w", err)
	}

	return config, config.Validate()
}

// Validate checks cross-field constraints that single getters cannot.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres: %q", c.Store.Backend)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text: %q", c.Log.Format)
	}
	if c.NeedsRedis() && c.Store.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required by the redis store, login throttle and access blacklist")
	}
	if c.Server.IsProduction() && !c.Security.CookieSecure {
		return errors.New("COOKIE_SECURE must be true in production")
	}
	if c.Store.SweepInterval <= 0 {
		return errors.New("STORE_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// NeedsRedis reports whether any enabled component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.Store.Backend == BackendRedis || c.Security.LoginThrottle || c.Security.AccessBlacklist
}

// EngineConfig maps the process configuration onto the engine configuration.
// Key files are read here.
func (c Config) EngineConfig() (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	cfg.JWT.SigningMethod = c.Auth.SigningMethod
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	switch c.Auth.SigningMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.Auth.Secret)
	case "ed25519":
		priv, err := os.ReadFile(c.Auth.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		pub, err := os.ReadFile(c.Auth.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read public key: %w", err)
		}
		cfg.JWT.PrivateKey, cfg.JWT.PublicKey = priv, pub
	}

	cfg.Refresh.RefreshTTL = c.Auth.RefreshTTL
	cfg.Refresh.ReplayGrace = c.Auth.ReplayGrace
	cfg.Refresh.StoreTimeout = c.Store.Timeout
	cfg.Refresh.Retention = c.Store.Retention

	cfg.Cookie.Secure = c.Security.CookieSecure
	cfg.Cookie.SameSite = c.Security.CookieSameSite
	cfg.Cookie.Domain = c.Security.CookieDomain

	cfg.Security.EnableLoginThrottle = c.Security.LoginThrottle
	cfg.Security.EnableIPThrottle = c.Security.IPThrottle
	cfg.Security.MaxLoginAttempts = c.Security.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = c.Security.LoginWindow
	cfg.Security.EnableAccessBlacklist = c.Security.AccessBlacklist
	cfg.Security.RequireOriginCheck = c.Security.RequireOriginCheck
	cfg.Security.AllowedOrigins = c.Security.AllowedOrigins

	cfg.Store.RedisPrefix = c.Store.RedisPrefix
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Histograms

	return cfg, cfg.Validate()
}

// parseSeeds reads "username:email:password" entries separated by commas.
// The email may be empty.
func parseSeeds(v string) ([]userstore.Seed, error) {
	var out []userstore.Seed
	for _, entry := range splitList(v) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("entry %q must be username:email:password", parts[0])
		}
		out = append(out, userstore.Seed{Username: parts[0], Email: parts[1], Password: parts[2]})
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvStringSafe(key, defaultValue string, required bool) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	return value, nil
}

func getEnvIntSafe(key string, defaultValue int, required bool) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
	}
	return value, nil
}

func getEnvDurationSafe(key string, defaultValue time.Duration, required bool) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return 0, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a valid duration: %w", key, err)
	}
	return value, nil
}

func getEnvBoolSafe(key string, defaultValue bool, required bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return false, fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a valid boolean: %w", key, err)
	}
	return value, nil
}

func getEnvEnvironmentSafe(key string, defaultValue Environment, required bool) (Environment, error) {
	env, exists := os.LookupEnv(key)
	if !exists {
		if required {
			return "", fmt.Errorf("environment variable %s is required", key)
		}
		return defaultValue, nil
	}
	envValue := Environment(env)
	if !envValue.IsValid() {
		return "", fmt.Errorf("environment variable %s has invalid value: %s", key, env)
	}
	return envValue, nil
}

func getEnvSameSiteSafe(key string, defaultValue http.SameSite) (http.SameSite, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("environment variable %s must be strict, lax or none: %s", key, v)
}
