package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a token id.
	ErrNotFound = errors.New("refresh record not found")
	// ErrConflict is returned by CompareAndRotate when the stored version
	// differs from the expected one.
	ErrConflict = errors.New("refresh record version conflict")
	// ErrAlreadyRotated is returned by CompareAndRotate when the record was
	// already consumed by another rotation.
	ErrAlreadyRotated = errors.New("refresh record already rotated")
	// ErrRevoked is returned by CompareAndRotate when the record was revoked.
	ErrRevoked = errors.New("refresh record revoked")
	// ErrUnavailable wraps every backend or transport failure.
	ErrUnavailable = errors.New("refresh store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("refresh record corrupt")
)

// DefaultMaxChainLength bounds chain traversal during revocation.
const DefaultMaxChainLength = 4096

// Store persists refresh records and is the only serialization point of the
// rotation protocol. Implementations must be safe for concurrent use and must
// make every mutation durable before returning. Records and their links are
// keyed by [Ref]; raw token ids are never persisted.
type Store interface {
	// Create stores a new ACTIVE record with version 0 for userID.
	Create(ctx context.Context, userID string, expiresAt time.Time) (*Record, error)

	// Get returns the record for tokenID or ErrNotFound.
	Get(ctx context.Context, tokenID string) (*Record, error)

	// GetByRef returns the record stored under ref, as found in another
	// record's SuccessorRef or PredecessorRef, or ErrNotFound.
	GetByRef(ctx context.Context, ref string) (*Record, error)

	// CompareAndRotate atomically marks tokenID ROTATED and creates its ACTIVE
	// successor newTokenID, provided the stored record is ACTIVE and its
	// version equals expectedVersion. Nothing is mutated on failure.
	CompareAndRotate(
		ctx context.Context,
		tokenID string,
		expectedVersion uint64,
		newTokenID string,
		newExpiresAt time.Time,
	) (*Record, error)

	// RevokeChain marks tokenID and every ancestor and descendant REVOKED and
	// returns how many records changed state.
	RevokeChain(ctx context.Context, tokenID string) (int, error)

	// Ping reports backend availability.
	Ping(ctx context.Context) error
}

// IsUnavailable reports whether err is a backend failure rather than a
// protocol outcome. Context deadline and cancellation count as unavailable.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
