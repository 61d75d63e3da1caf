// Package cache provides the byte-value cache stores backing the resolver's
// metadata cache: Redis when configured, an in-process ristretto cache, or a
// database table as last resort.
package cache

import (
	"context"
	"time"
)

// Store is the shared cache interface. A ttl of zero means no expiry; Get
// reports a miss for absent and expired keys alike.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
