package tier

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a resolved tier stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// CachedResolver decorates a Resolver with a TTL cache and maps resolver
// failures to Unknown, so lookups never fail on the routing hot path.
type CachedResolver struct {
	inner  Resolver
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tier    Tier
	expires time.Time
}

// CachedResolverOption configures a CachedResolver.
type CachedResolverOption func(*CachedResolver)

// WithCacheLogger sets a custom logger.
func WithCacheLogger(logger *slog.Logger) CachedResolverOption {
	return func(c *CachedResolver) {
		c.logger = logger
	}
}

// NewCachedResolver wraps inner with a TTL cache.
func NewCachedResolver(inner Resolver, ttl time.Duration, opts ...CachedResolverOption) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		logger:  slog.Default(),
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveTier returns the cached tier when fresh, otherwise consults the
// inner resolver. Resolver failures degrade to Unknown and are not cached,
// so a recovered resolver is consulted again on the next lookup.
func (c *CachedResolver) ResolveTier(ctx context.Context, identity string) (Tier, error) {
	now := time.Now()

	c.mu.Lock()
	if entry, ok := c.entries[identity]; ok && now.Before(entry.expires) {
		c.mu.Unlock()
		return entry.tier, nil
	}
	c.mu.Unlock()

	resolved, err := c.inner.ResolveTier(ctx, identity)
	if err != nil {
		c.logger.Warn("tier resolver unavailable, defaulting to unknown",
			"identity", identity,
			"error", err)
		return Unknown, nil
	}

	c.mu.Lock()
	c.entries[identity] = cacheEntry{tier: resolved, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return resolved, nil
}

// Invalidate drops a cached entry, forcing the next lookup through.
func (c *CachedResolver) Invalidate(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}
