package providers

import (
	"context"
	"time"
)

// CacheProvider is the shared key/value store behind the entry cache, the
// per-entry in-flight guard and cross-instance rate limits. Implementations
// report a missing key from Get as an error.
type CacheProvider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// SetIfAbsent reports whether this call created the key.
	SetIfAbsent(ctx context.Context, key string, value []byte, expirationSeconds int) (bool, error)

	// Increment adds one to a counter and returns the new value with the time
	// left before it expires. The expiry is set only when the counter is
	// created, so a window is never extended.
	Increment(ctx context.Context, key string, expirationSeconds int) (int64, time.Duration, error)

	Delete(ctx context.Context, key string) error
}
