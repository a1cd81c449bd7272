package refresh

import (
	"fmt"
	"time"
)

// Status is the rotation state of a refresh record.
type Status uint8

const (
	// StatusActive marks the current, usable link of a chain.
	StatusActive Status = iota + 1
	// StatusRotated marks a record consumed by a successful rotation.
	StatusRotated
	// StatusRevoked marks a record invalidated by logout or replay detection.
	StatusRevoked
)

// String returns the storage representation of s.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRotated:
		return "rotated"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status value back into a [Status].
func ParseStatus(v string) (Status, error) {
	switch v {
	case "active":
		return StatusActive, nil
	case "rotated":
		return StatusRotated, nil
	case "revoked":
		return StatusRevoked, nil
	default:
		return 0, fmt.Errorf("%w: unknown status %q", ErrCorrupt, v)
	}
}

// Record is one link of a refresh-token chain.
//
// TokenID is the bearer value and is only known to the caller that presented
// or minted it; records read through [Store.GetByRef] leave it empty. Ref is
// the storage key, see [Ref]. SuccessorRef is set if and only if the record
// was rotated. PredecessorRef is the reverse index used to walk a chain
// backwards during revocation.
type Record struct {
	TokenID        string
	Ref            string
	UserID         string
	Status         Status
	SuccessorRef   string
	PredecessorRef string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Version        uint64
}

// Expired reports whether the record is past its absolute expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Clone returns a detached copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
