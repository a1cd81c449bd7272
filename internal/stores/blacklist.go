package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrBlacklistUnavailable wraps Redis failures on blacklist reads and writes.
	ErrBlacklistUnavailable = errors.New("blacklist redis unavailable")
)

// AccessBlacklist records access tokens that were logged out before their
// natural expiry. Tokens are stored by SHA-256 digest, never in plaintext.
type AccessBlacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// NewAccessBlacklist creates a blacklist under "<prefix>:bl:".
func NewAccessBlacklist(redisClient redis.UniversalClient, prefix string) *AccessBlacklist {
	if prefix == "" {
		prefix = "gs"
	}
	return &AccessBlacklist{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (b *AccessBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + ":bl:" + hex.EncodeToString(sum[:])
}

// Add blacklists token for ttl. A non-positive ttl means the token has
// already expired and nothing is written.
func (b *AccessBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return nil
}

// Contains reports whether token is currently blacklisted.
func (b *AccessBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := b.redis.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return n > 0, nil
}
