// Package idempotency implements the Idempotency Cache (Component C): a
// durable key→response store, TTL'd and namespaced per partner, with a
// strict policy that cache failures degrade gracefully rather than ever
// failing a delivery.
package idempotency

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flightline-dev/flightline/internal/telemetry"
)

// DefaultTTL is the default cache lifetime (spec.md §4.C).
const DefaultTTL = 24 * time.Hour

// CachedResponse is the stored value keyed by (namespace, key).
type CachedResponse struct {
	Key       string          `json:"key"`
	Namespace string          `json:"namespace"`
	Body      json.RawMessage `json:"body"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Cache is a Redis-backed idempotency cache, namespaced per partner.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    map[string]time.Duration // per-namespace TTL override

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache. namespaceTTLs overrides DefaultTTL per namespace.
func New(rdb *redis.Client, logger *slog.Logger, namespaceTTLs map[string]time.Duration) *Cache {
	return &Cache{rdb: rdb, logger: logger, ttl: namespaceTTLs}
}

func (c *Cache) ttlFor(namespace string) time.Duration {
	if d, ok := c.ttl[namespace]; ok {
		return d
	}
	return DefaultTTL
}

func redisKey(namespace, key string) string {
	return "flightline:idem:" + namespace + ":" + key
}

// Lookup returns the cached response for (namespace, key), or (nil, false)
// on either a genuine miss or a transport failure — the two are
// indistinguishable to callers by design, because a cache outage must
// never be mistaken for (or promoted into) a delivery failure.
func (c *Cache) Lookup(ctx context.Context, namespace, key string) (*CachedResponse, bool) {
	raw, err := c.rdb.Get(ctx, redisKey(namespace, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("idempotency cache lookup degraded", "namespace", namespace, "error", err)
			telemetry.CacheLookupsTotal.WithLabelValues(namespace, "degraded").Inc()
		} else {
			telemetry.CacheLookupsTotal.WithLabelValues(namespace, "miss").Inc()
		}
		c.misses.Add(1)
		return nil, false
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("idempotency cache entry corrupt, treating as miss", "namespace", namespace, "error", err)
		telemetry.CacheLookupsTotal.WithLabelValues(namespace, "degraded").Inc()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	telemetry.CacheLookupsTotal.WithLabelValues(namespace, "hit").Inc()
	return &resp, true
}

// Store writes the response for (namespace, key). A transport failure is
// swallowed and logged — Store always "succeeds" from the caller's
// perspective, per spec.md §4.C's failure policy.
func (c *Cache) Store(ctx context.Context, namespace, key string, body json.RawMessage) {
	now := time.Now().UTC()
	ttl := c.ttlFor(namespace)
	resp := CachedResponse{
		Key:       key,
		Namespace: namespace,
		Body:      body,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("idempotency cache store: marshal failed", "namespace", namespace, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, redisKey(namespace, key), raw, ttl).Err(); err != nil {
		c.logger.Warn("idempotency cache store degraded", "namespace", namespace, "error", err)
	}
}

// Invalidate removes the cached entry for (namespace, key), if present.
// Best-effort: failures are logged, never returned, consistent with the
// rest of this cache's failure policy.
func (c *Cache) Invalidate(ctx context.Context, namespace, key string) {
	if err := c.rdb.Del(ctx, redisKey(namespace, key)).Err(); err != nil {
		c.logger.Warn("idempotency cache invalidate degraded", "namespace", namespace, "error", err)
	}
}

// Stats reports in-process hit/miss counters for namespace observability.
// Counters are process-wide across all namespaces, mirroring the coarse
// granularity of the teacher's deduplication counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns the current hit/miss counters.
func (c *Cache) Stats(_ string) Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
