package refresh

import (
	"crypto/sha256"
	"encoding/hex"
)

// Ref returns the storage key of a refresh token id: the hex encoded SHA-256
// of its canonical form. Stores persist only refs, so a dump of the backend
// cannot be replayed as a cookie.
func Ref(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}
