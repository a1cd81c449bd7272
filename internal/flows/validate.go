package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureBlacklisted
	ValidateFailureStoreUnavailable
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Verify func(string, time.Time) (*jwt.AccessClaims, error)
	Now    func() time.Time
	// IsBlacklisted is nil when the blacklist is disabled.
	IsBlacklisted func(ctx context.Context, token string) (bool, error)
	// FailOpen accepts tokens when the blacklist backend cannot be reached.
	FailOpen bool
}

// RunValidate verifies an access token and consults the blacklist.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Verify(tokenStr, deps.Now())
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	if deps.IsBlacklisted != nil {
		listed, err := deps.IsBlacklisted(ctx, tokenStr)
		if err != nil {
			if !deps.FailOpen {
				return ValidateResult{Failure: ValidateFailureStoreUnavailable, Err: err}
			}
		} else if listed {
			return ValidateResult{Failure: ValidateFailureBlacklisted}
		}
	}

	return ValidateResult{Claims: claims}
}
