package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores LLM completions keyed by Key. All tiers implement it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a cache key from the request parts (stage, model,
// prompt text). Identical inputs to an LLM stage hit the same entry.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "driftbrief:v1:" + hex.EncodeToString(hash[:])
}
