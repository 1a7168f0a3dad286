package auth

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

// RevocationList stores logged-out tokens until they would have expired
// anyway. Keys carry a TTL equal to the token's remaining lifetime, so
// the set stays bounded instead of growing forever. Passed as an
// explicit dependency to the auth middleware; a nil Redis client
// degrades to "nothing is revoked".
type RevocationList struct {
	redis radix.Client
}

func NewRevocationList(redis radix.Client) *RevocationList {
	return &RevocationList{redis: redis}
}

func revocationKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return "auth:revoked:" + hex.EncodeToString(sum[:])
}

// Revoke marks a token as logged out for the given remaining lifetime.
func (l *RevocationList) Revoke(token string, ttl time.Duration) error {
	if l == nil || l.redis == nil {
		return nil
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return l.redis.Do(radix.Cmd(nil, "SETEX", revocationKey(token), fmt.Sprint(seconds), "1"))
}

// IsRevoked reports whether a token was logged out.
func (l *RevocationList) IsRevoked(token string) (bool, error) {
	if l == nil || l.redis == nil {
		return false, nil
	}
	var n int
	if err := l.redis.Do(radix.Cmd(&n, "EXISTS", revocationKey(token))); err != nil {
		return false, err
	}
	return n == 1, nil
}
