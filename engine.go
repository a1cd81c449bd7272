package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/stores"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
)

// Engine issues, rotates and revokes session credentials. It is safe for
// concurrent use once returned by [Builder.Build].
type Engine struct {
	config      Config
	store       refresh.Store
	jwtManager  *jwt.Manager
	rateLimiter *rate.Limiter
	blacklist   *stores.AccessBlacklist
	verifier    CredentialVerifier
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	flows       flows.Service
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Login verifies credentials and starts a new refresh chain.
func (e *Engine) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, creds.UsernameOrEmail, creds.Password)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, nil)
		return nil, ErrLoginRateLimited
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrAuthFailed, nil)
		return nil, ErrAuthFailed
	case flows.LoginFailureStoreUnavailable:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("gosession: login store failure", "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, "", ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("gosession: access token issue failed", "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, "", ErrTokenIssue, nil)
		return nil, fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.UserID, res.RefreshToken, nil, nil)

	return &LoginResult{
		User: Principal{UserID: res.User.UserID, Username: res.User.Username},
		TokenPair: TokenPair{
			UserID:           res.User.UserID,
			AccessToken:      res.AccessToken,
			AccessExpiresAt:  res.AccessExpiresAt,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.RefreshExpiresAt,
		},
	}, nil
}

// Refresh rotates the presented refresh token. Exactly one of any number of
// concurrent calls with the same token succeeds. Every failure except
// [ErrStoreUnavailable] and [ErrTokenIssue] satisfies [IsRefreshRejection].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.TokenID, nil, nil)

	return &TokenPair{
		UserID:           res.UserID,
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	var (
		err    error
		metric MetricID
		event  = auditEventRefreshRejected
	)
	switch res.Failure {
	case flows.RefreshFailureUnknown:
		err, metric = ErrTokenUnknown, MetricRefreshUnknown
	case flows.RefreshFailureExpired:
		err, metric = ErrTokenExpired, MetricRefreshExpired
	case flows.RefreshFailureRevoked:
		err, metric = ErrTokenRevoked, MetricRefreshRevoked
	case flows.RefreshFailureRaceLost:
		err, metric = ErrTokenRaceLost, MetricRefreshRaceLost
	case flows.RefreshFailureReplayed:
		err, metric, event = ErrTokenReplayed, MetricRefreshReplayed, auditEventRefreshReplayDetected
		e.metrics.Add(MetricChainRecordsRevoked, uint64(res.Revoked))
		e.logger.Warn("gosession: refresh token replay, chain revoked",
			"user_id", res.UserID,
			"token_ref", tokenRef(res.TokenID),
			"revoked", res.Revoked,
		)
	case flows.RefreshFailureStoreUnavailable:
		e.metricInc(MetricRefreshStoreUnavailable)
		e.logger.Error("gosession: refresh store unavailable", "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshRejected, false, res.UserID, res.TokenID, ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.logger.Error("gosession: access token issue failed", "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshRejected, false, res.UserID, res.TokenID, ErrTokenIssue, nil)
		return fmt.Errorf("%w: %v", ErrTokenIssue, res.Err)
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, false, res.UserID, res.TokenID, err, func() map[string]string {
		if res.Failure != flows.RefreshFailureReplayed {
			return nil
		}
		return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
	})
	return err
}

// Logout revokes the chain of refreshToken and blacklists accessToken when
// one is given and the blacklist is enabled. Unknown refresh tokens are not
// an error, so logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken, accessToken)
	if res.Err != nil {
		e.logger.Error("gosession: logout revocation failed", "error", res.Err)
		e.emitAudit(ctx, auditEventLogout, false, "", refreshToken, ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}

	e.metricInc(MetricLogout)
	e.metrics.Add(MetricChainRecordsRevoked, uint64(res.Revoked))
	e.emitAudit(ctx, auditEventLogout, true, "", refreshToken, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
	})
	return nil
}

// Validate verifies an access token. It performs no refresh store I/O; with
// the blacklist enabled it makes one Redis read.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, accessToken)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureBlacklisted:
		e.metricInc(MetricBlacklistHit)
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	case flows.ValidateFailureStoreUnavailable:
		e.metricInc(MetricValidateFailure)
		e.logger.Error("gosession: blacklist unavailable", "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenInvalid
	}

	out := &AuthResult{UserID: res.Claims.UserID()}
	if res.Claims.IssuedAt != nil {
		out.IssuedAt = res.Claims.IssuedAt.Time
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

// Ping checks the refresh store within the store timeout.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Refresh.StoreTimeout)
	defer cancel()
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) initFlows() {
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }
	cfg := e.config

	issueAccess := func(userID string, now time.Time) (string, time.Time, error) {
		token, claims, err := e.jwtManager.Issue(userID, now)
		if err != nil {
			return "", time.Time{}, err
		}
		return token, claims.ExpiresAt.Time, nil
	}

	deps := flows.Deps{
		Login: flows.LoginDeps{
			Store:        e.store,
			Now:          e.now,
			RefreshTTL:   cfg.Refresh.RefreshTTL,
			StoreTimeout: cfg.Refresh.StoreTimeout,
			VerifyCredentials: func(ctx context.Context, id, pw string) (flows.LoginUser, error) {
				p, err := e.verifier.VerifyCredentials(ctx, id, pw)
				if err != nil {
					return flows.LoginUser{}, err
				}
				if p.UserID == "" {
					return flows.LoginUser{}, errors.New("verifier returned empty user id")
				}
				return flows.LoginUser{UserID: p.UserID, Username: p.Username}, nil
			},
			IssueAccess: issueAccess,
			ClientIP:    clientIPFromContext,
			Warn:        warn,
		},
		Refresh: flows.RefreshDeps{
			Store:        e.store,
			Now:          e.now,
			RefreshTTL:   cfg.Refresh.RefreshTTL,
			StoreTimeout: cfg.Refresh.StoreTimeout,
			NewTokenID:   refresh.NewTokenID,
			IssueAccess:  issueAccess,
			Warn:         warn,
			ReplayGrace:  cfg.Refresh.ReplayGrace,
		},
		Logout: flows.LogoutDeps{
			Store:        e.store,
			StoreTimeout: cfg.Refresh.StoreTimeout,
			Now:          e.now,
			Warn:         warn,
		},
		Validate: flows.ValidateDeps{
			Verify:   e.jwtManager.Verify,
			Now:      e.now,
			FailOpen: cfg.Security.BlacklistFailOpen,
		},
	}

	if e.rateLimiter != nil {
		deps.Login.CheckLoginRate = e.rateLimiter.CheckLogin
		deps.Login.IncrementLoginRate = e.rateLimiter.IncrementLogin
		deps.Login.ResetLoginRate = e.rateLimiter.ResetLogin
		deps.Login.RateLimited = rate.ErrRateLimited
	}

	if e.blacklist != nil {
		leeway := cfg.JWT.Leeway
		deps.Logout.Blacklist = e.blacklist.Add
		deps.Logout.VerifyAccess = func(token string, now time.Time) (time.Time, error) {
			claims, err := e.jwtManager.Verify(token, now)
			if err != nil {
				return time.Time{}, err
			}
			// Verify accepts the token until exp+leeway.
			return claims.ExpiresAt.Time.Add(leeway), nil
		}
		deps.Validate.IsBlacklisted = e.blacklist.Contains
	}

	e.flows = flows.New(deps)
}
