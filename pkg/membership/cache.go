package membership

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/observability"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute

	redisKeyPrefix = "authcore:memberships:"
)

// Cache is a two-tier membership cache: an in-process expirable LRU in
// front of an optional shared redis tier. Both tiers hold the flattened
// group list per user id. Redis failures degrade to the Directory, never
// to an error.
type Cache struct {
	local *lru.LRU[string, []directory.Group]
	redis *redis.Client
	ttl   time.Duration
	log   *observability.Logger

	metrics *observability.Metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithRedis adds the shared redis tier.
func WithRedis(client *redis.Client) CacheOption {
	return func(c *Cache) { c.redis = client }
}

// WithTTL overrides the default entry lifetime for both tiers.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCacheMetrics records hits and misses per tier.
func WithCacheMetrics(m *observability.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache builds a cache holding up to size entries locally; size <= 0
// uses the default.
func NewCache(size int, log *observability.Logger, opts ...CacheOption) *Cache {
	c := &Cache{ttl: defaultCacheTTL, log: log}
	for _, opt := range opts {
		opt(c)
	}
	if size <= 0 {
		size = defaultCacheSize
	}
	c.local = lru.NewLRU[string, []directory.Group](size, nil, c.ttl)
	return c
}

// Get returns the cached membership list for a user, trying the local tier
// first. A redis hit is promoted into the local tier.
func (c *Cache) Get(ctx context.Context, userID string) ([]directory.Group, bool) {
	if groups, ok := c.local.Get(userID); ok {
		c.count("local", true)
		return groups, true
	}
	c.count("local", false)

	if c.redis == nil {
		return nil, false
	}
	payload, err := c.redis.Get(ctx, redisKeyPrefix+userID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("membership cache read failed", "user", userID)
		}
		c.count("redis", false)
		return nil, false
	}
	var groups []directory.Group
	if err := json.Unmarshal(payload, &groups); err != nil {
		c.log.WithError(err).Warn("discarding undecodable membership cache entry", "user", userID)
		c.count("redis", false)
		return nil, false
	}
	c.count("redis", true)
	c.local.Add(userID, groups)
	return groups, true
}

// Set stores the membership list in both tiers.
func (c *Cache) Set(ctx context.Context, userID string, groups []directory.Group) {
	c.local.Add(userID, groups)
	if c.redis == nil {
		return
	}
	payload, err := json.Marshal(groups)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+userID, payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("membership cache write failed", "user", userID)
	}
}

// Invalidate drops a user's entry from both tiers, called after membership
// mutations so the next read reflects them.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	c.local.Remove(userID)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, redisKeyPrefix+userID).Err(); err != nil {
		c.log.WithError(err).Warn("membership cache invalidation failed", "user", userID)
	}
}

func (c *Cache) count(tier string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}
