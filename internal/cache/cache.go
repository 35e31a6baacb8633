// Package cache provides the layered response cache that makes repeated
// pipeline runs cheap and deterministic: LLM completions and embedding
// vectors are stored under content-derived keys, so an unchanged corpus
// never pays for the same API call twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a stable cache key from the given parts. Parts are joined
// with a separator that cannot appear in prompts, so ("ab", "c") and
// ("a", "bc") never collide.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "beacon:v1:" + hex.EncodeToString(hash[:])
}
