// Package router implements the Feature-Flag / Traffic Router: a durable
// per-(flag, region) percentage store with a short local read cache.
// Flightline does not implement a general feature-flag service (spec.md
// §1 Non-goals) — this is a thin, narrowly-scoped percentage store used
// only to drive canary traffic weights.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

const invalidationChannel = "flightline:router:invalidate"

// cacheTTL is the local read-cache lifetime. Spec.md §4.B permits up to 60s.
const cacheTTL = 30 * time.Second

type cacheEntry struct {
	value     float64
	expiresAt time.Time
}

// store is the subset of *pgxpool.Pool the Router needs. Narrowing to an
// interface lets tests substitute a fake without standing up Postgres.
type store interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Router stores rollout percentages durably in Postgres and serves reads
// from a short-lived local cache, invalidated across processes via Redis
// pub/sub the way escalation.Engine subscribes to its ack channel.
type Router struct {
	db     store
	rdb    *redis.Client
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates a Router and starts its cross-process invalidation listener.
// Callers should pass a context bound to process lifetime.
func New(ctx context.Context, db store, rdb *redis.Client, logger *slog.Logger) *Router {
	r := &Router{
		db:     db,
		rdb:    rdb,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
	go r.listenInvalidations(ctx)
	return r
}

func cacheKey(flag, region string) string {
	return flag + "\x00" + region
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// GetPercentage returns the current rollout fraction for (flag, region),
// serving from the local cache when fresh.
func (r *Router) GetPercentage(ctx context.Context, flag, region string) (float64, error) {
	key := cacheKey(flag, region)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	var pct float64
	err := r.db.QueryRow(ctx,
		`SELECT percentage FROM traffic_weights WHERE flag = $1 AND region = $2`,
		flag, region,
	).Scan(&pct)
	if err != nil {
		if err == pgx.ErrNoRows {
			pct = 0
		} else {
			return 0, fmt.Errorf("querying traffic weight: %w", err)
		}
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{value: pct, expiresAt: time.Now().Add(cacheTTL)}
	r.mu.Unlock()

	return pct, nil
}

// SetPercentage durably sets the rollout fraction for (flag, region). By
// the time this returns, any subsequent Get (local or remote) observes the
// new value: the local cache is updated synchronously and an invalidation
// is published so other processes drop their stale entry.
func (r *Router) SetPercentage(ctx context.Context, flag, region string, fraction float64) error {
	fraction = clamp(fraction)

	_, err := r.db.Exec(ctx, `
		INSERT INTO traffic_weights (flag, region, percentage, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (flag, region) DO UPDATE
		SET percentage = EXCLUDED.percentage, updated_at = EXCLUDED.updated_at
	`, flag, region, fraction)
	if err != nil {
		return fmt.Errorf("writing traffic weight: %w", err)
	}

	key := cacheKey(flag, region)
	r.mu.Lock()
	r.cache[key] = cacheEntry{value: fraction, expiresAt: time.Now().Add(cacheTTL)}
	r.mu.Unlock()

	if r.rdb != nil {
		if err := r.rdb.Publish(ctx, invalidationChannel, key).Err(); err != nil {
			r.logger.Warn("router: publishing cache invalidation failed", "error", err)
		}
	}

	return nil
}

func (r *Router) listenInvalidations(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	sub := r.rdb.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.mu.Lock()
			delete(r.cache, msg.Payload)
			r.mu.Unlock()
		}
	}
}
