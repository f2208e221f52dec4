// Package cache provides response caching for generation requests: a kv
// Store abstraction with TTL semantics, request fingerprinting, and the
// ResponseCache policy layer that decides what is cacheable.
package cache

import (
	"context"
	"time"
)

// Store is the kv collaborator the response cache runs on. Implementations
// must be safe for concurrent use. A zero TTL stores without expiry.
type Store interface {
	// Get returns the value for key. The second return is false on a miss;
	// an expired entry is a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys, returning how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Keys returns all live keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
