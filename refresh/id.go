package refresh

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMalformedTokenID is returned by ParseTokenID for values that could never
// have been issued.
var ErrMalformedTokenID = errors.New("malformed refresh token id")

// NewTokenID returns a fresh random (v4) token identifier. The identifier is
// the bearer value placed in the refresh cookie.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseTokenID validates the shape of a presented refresh token and returns
// its canonical form. Anything that is not a version 4 UUID is rejected
// before the store is consulted.
func ParseTokenID(v string) (string, error) {
	if v == "" || len(v) > 64 {
		return "", ErrMalformedTokenID
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", ErrMalformedTokenID
	}
	if id.Version() != 4 {
		return "", ErrMalformedTokenID
	}
	return id.String(), nil
}
