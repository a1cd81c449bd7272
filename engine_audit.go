package goSession

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshRejected       = "refresh_rejected"
	auditEventRefreshReplayDetected = "refresh_replay_detected"
	auditEventLogout                = "logout"
)

// AuditErrorCode is the machine-readable failure reason on an [AuditEvent].
type AuditErrorCode string

const (
	auditErrAuthFailed       AuditErrorCode = "auth_failed"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrTokenUnknown     AuditErrorCode = "token_unknown"
	auditErrTokenExpired     AuditErrorCode = "token_expired"
	auditErrTokenRevoked     AuditErrorCode = "token_revoked"
	auditErrTokenReplayed    AuditErrorCode = "token_replayed"
	auditErrTokenRaceLost    AuditErrorCode = "token_race_lost"
	auditErrStoreUnavailable AuditErrorCode = "store_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	refreshToken string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TokenRef:  tokenRef(refreshToken),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// tokenRef fingerprints a refresh token for logs and audit records.
func tokenRef(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthFailed):
		return auditErrAuthFailed
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenUnknown):
		return auditErrTokenUnknown
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenReplayed):
		return auditErrTokenReplayed
	case errors.Is(err, ErrTokenRaceLost):
		return auditErrTokenRaceLost
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	default:
		return auditErrInternal
	}
}
