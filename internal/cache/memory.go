package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryStore implements the cache Store interface with an in-process
// ristretto cache. It is the default backend when Redis is disabled.
type MemoryStore struct {
	cache *ristretto.Cache
}

// NewMemoryStore constructs an in-process store bounded to roughly maxBytes.
func NewMemoryStore(maxBytes int64) (*MemoryStore, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

// Set stores the value with the provided TTL. Admission is asynchronous.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	s.cache.SetWithTTL(key, value, cost, ttl)
	return nil
}

// Get retrieves a value; the second return value reports presence.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, ok := raw.([]byte)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes keys from the store.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Del(key)
	}
	return nil
}

// Wait blocks until buffered writes are applied. Intended for tests.
func (s *MemoryStore) Wait() {
	s.cache.Wait()
}

// Close releases cache resources.
func (s *MemoryStore) Close() {
	s.cache.Close()
}
