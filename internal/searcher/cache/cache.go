package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-server/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/resilience"
)

const (
	keyPrefix   = "search:"
	breakerName = "redis-cache"
)

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached result. Query must be a canonical query form so
// that equivalent queries share an entry. String is the key's hash; the
// Redis key also carries the cache generation.
type Key struct {
	Query  string
	Status string
	Policy string
}

func (k Key) String() string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|status=%s|policy=%s", k.Query, k.Status, k.Policy)))
	return fmt.Sprintf("%x", hash[:16])
}

// QueryCache stores ranked results in Redis. Every entry belongs to a
// generation; Invalidate starts a new one, so a result computed against the
// old index can never be read back even if its write lands after the flush.
type QueryCache struct {
	store      Store
	generation atomic.Uint64
	ttl        time.Duration
	group      singleflight.Group
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	cfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	c.breaker = resilience.NewCircuitBreaker(breakerName, cfg)
	return c
}

func (c *QueryCache) storageKey(key Key, gen uint64) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, gen, key)
}

func (c *QueryCache) Get(ctx context.Context, key Key) ([]ranker.Document, bool) {
	return c.get(ctx, key, c.generation.Load())
}

func (c *QueryCache) get(ctx context.Context, key Key, gen uint64) ([]ranker.Document, bool) {
	k := c.storageKey(key, gen)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, k)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var docs []ranker.Document
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return docs, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, docs []ranker.Document) {
	c.set(ctx, key, c.generation.Load(), docs)
}

func (c *QueryCache) set(ctx context.Context, key Key, gen uint64, docs []ranker.Document) {
	k := c.storageKey(key, gen)
	if docs == nil {
		docs = []ranker.Document{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, k, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once per key
// across concurrent callers and caches its result. The bool reports a cache
// hit. Errors from compute are returned and not cached. A result whose
// generation was invalidated while compute ran is returned but not stored,
// and callers arriving after an invalidation never share an older compute.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() ([]ranker.Document, error),
) ([]ranker.Document, bool, error) {
	gen := c.generation.Load()
	if docs, ok := c.get(ctx, key, gen); ok {
		return docs, true, nil
	}
	k := c.storageKey(key, gen)
	val, err, _ := c.group.Do(k, func() (any, error) {
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			c.logger.Debug("cache invalidated during compute, result not stored", "key", k)
			return docs, nil
		}
		c.set(ctx, key, gen, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Document), false, nil
}

// Invalidate starts a new generation and drops every stored result. The
// generation moves even if Redis is unreachable, so stale entries stop being
// read immediately and expire with their TTL.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
