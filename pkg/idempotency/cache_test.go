package idempotency

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, logger, nil)
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Lookup(context.Background(), "benevity", "somekey")
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestStoreThenLookupHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "benevity", "k1", []byte(`{"accepted":true,"externalId":"B123"}`))

	resp, ok := c.Lookup(ctx, "benevity", "k1")
	if !ok {
		t.Fatal("expected hit after store")
	}
	if string(resp.Body) != `{"accepted":true,"externalId":"B123"}` {
		t.Errorf("unexpected body: %s", resp.Body)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "benevity", "k1", []byte(`{}`))
	c.Invalidate(ctx, "benevity", "k1")

	_, ok := c.Lookup(ctx, "benevity", "k1")
	if ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestLookupDegradesGracefullyOnTransportFailure(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(rdb, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	resp, ok := c.Lookup(ctx, "benevity", "k1")
	if ok || resp != nil {
		t.Fatal("expected graceful miss, not an error, on transport failure")
	}
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Store(ctx, "benevity", "k1", []byte(`{}`))
	c.Lookup(ctx, "benevity", "k1")
	c.Lookup(ctx, "benevity", "nope")

	stats := c.Stats("benevity")
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestNamespaceTTLOverride(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(rdb, logger, map[string]time.Duration{"fast": 1 * time.Second})

	ctx := context.Background()
	c.Store(ctx, "fast", "k1", []byte(`{}`))
	mr.FastForward(2 * time.Second)

	_, ok := c.Lookup(ctx, "fast", "k1")
	if ok {
		t.Fatal("expected entry to expire under the namespace TTL override")
	}
}
