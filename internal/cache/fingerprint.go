// Package cache implements the tiered query cache: Redis as the primary
// backing, an in-process LRU as the shadow/fallback, and a circuit breaker
// that keeps a slow or absent Redis from hurting turn latency.
package cache

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
)

// Fingerprint returns a short stable hash of the lowercased, trimmed text.
// Used as the cache key for raw and normalized queries.
func Fingerprint(text string) string {
	canonical := strings.ToLower(strings.TrimSpace(text))
	h := fnv.New64a()
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}
