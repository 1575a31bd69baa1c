// Package cache provides the byte-oriented cache layers backing the
// embedding service and the resolve-once concept cache. Values are
// serialized by the caller; keys are namespaced and hashed so arbitrary
// text is filesystem-safe.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is the shared contract of the memory, disk and layered caches.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a stable namespaced key from its parts. The parts are joined
// and hashed, so label text, model names and branch names of any shape
// produce a fixed-width key.
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "folioenrich:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}
