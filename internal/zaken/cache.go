package zaken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vngrid/caseguard/internal/cache"
	"github.com/vngrid/caseguard/pkg/metrics"
)

const (
	objectKeyPrefix    = "zaken:object:"
	caseTypesKeyPrefix = "zaken:casetypes:"

	// Not-found answers are cached too, with a marker value, so repeated
	// probes for missing objects do not hammer the registry.
	notFoundMarker = "!"
)

// CachingResolver decorates a Resolver with a TTL-bound cache. The cache is
// an explicit dependency handed in by the caller, never ambient state.
type CachingResolver struct {
	upstream Resolver
	store    cache.Store
	ttl      time.Duration
}

// NewCachingResolver wraps upstream with the given store and TTL.
func NewCachingResolver(upstream Resolver, store cache.Store, ttl time.Duration) (*CachingResolver, error) {
	if upstream == nil {
		return nil, errors.New("zaken: upstream resolver is required")
	}
	if store == nil {
		return nil, errors.New("zaken: cache store is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingResolver{upstream: upstream, store: store, ttl: ttl}, nil
}

// ResolveObject serves object metadata from cache when fresh, falling back to
// the upstream resolver. Cache failures degrade to upstream lookups.
func (r *CachingResolver) ResolveObject(ctx context.Context, objectURL string) (*ObjectMeta, error) {
	key := objectKeyPrefix + objectURL

	if raw, ok, err := r.store.Get(ctx, key); err == nil && ok {
		metrics.ResolverLookups.WithLabelValues("cache", "hit").Inc()
		if string(raw) == notFoundMarker {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectURL)
		}
		var meta ObjectMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			return &meta, nil
		}
	}
	metrics.ResolverLookups.WithLabelValues("cache", "miss").Inc()

	meta, err := r.upstream.ResolveObject(ctx, objectURL)
	if errors.Is(err, ErrObjectNotFound) {
		_ = r.store.Set(ctx, key, []byte(notFoundMarker), r.ttl)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(meta); err == nil {
		_ = r.store.Set(ctx, key, raw, r.ttl)
	}
	return meta, nil
}

// CaseTypes serves catalog listings from cache when fresh.
func (r *CachingResolver) CaseTypes(ctx context.Context, catalog string) ([]CaseType, error) {
	key := caseTypesKeyPrefix + catalog

	if raw, ok, err := r.store.Get(ctx, key); err == nil && ok {
		metrics.ResolverLookups.WithLabelValues("cache", "hit").Inc()
		var types []CaseType
		if err := json.Unmarshal(raw, &types); err == nil {
			return types, nil
		}
	}
	metrics.ResolverLookups.WithLabelValues("cache", "miss").Inc()

	types, err := r.upstream.CaseTypes(ctx, catalog)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(types); err == nil {
		_ = r.store.Set(ctx, key, raw, r.ttl)
	}
	return types, nil
}

// Invalidate drops cached metadata for the given object URL.
func (r *CachingResolver) Invalidate(ctx context.Context, objectURL string) error {
	return r.store.Delete(ctx, objectKeyPrefix+objectURL)
}
