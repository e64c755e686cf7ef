// Package memcache is an in-process TTL cache for vendor responses. It is
// deliberately not a general-purpose cache: single process, string keys,
// best effort, tuned for a read-heavy fan-out workload.
package memcache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/citydash/transit-api/internal/pkg/metrics"
)

const shardCount = 16

type entry[T any] struct {
	value    T
	storedAt time.Time
}

type shard[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
}

// Cache is a sharded read-through cache with one TTL per instance.
// Staleness is evaluated on every read; the periodic sweep only bounds
// memory and is never the freshness mechanism.
type Cache[T any] struct {
	name   string
	ttl    time.Duration
	shards [shardCount]*shard[T]
	group  singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache named for its metrics namespace. A sweepInterval of
// zero disables the background sweep.
func New[T any](name string, ttl, sweepInterval time.Duration) *Cache[T] {
	c := &Cache[T]{
		name: name,
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[T]{items: make(map[string]entry[T])}
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

func (c *Cache[T]) shardFor(key string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the cached value if present and fresh.
func (c *Cache[T]) Get(key string) (T, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[key]
	if !ok || time.Since(e.storedAt) > c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the current timestamp.
func (c *Cache[T]) Set(key string, value T) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry[T]{value: value, storedAt: time.Now()}
}

// GetOrFetch returns the cached value on a hit, otherwise calls fetch and
// stores its result. A failed fetch propagates to the caller and is never
// cached. Concurrent misses for the same key are collapsed into a single
// in-flight fetch.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(c.name).Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under singleflight: a concurrent fetch may have
		// populated the entry while we queued.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete removes a key.
func (c *Cache[T]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[T]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// EvictExpired removes stale entries shard by shard, so no single critical
// section spans the whole cache.
func (c *Cache[T]) EvictExpired() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.items {
			if now.Sub(e.storedAt) > c.ttl {
				delete(s.items, key)
				metrics.CacheEvictions.WithLabelValues(c.name).Inc()
			}
		}
		s.mu.Unlock()
	}
}

// Close stops the background sweeper.
func (c *Cache[T]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[T]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.EvictExpired()
		case <-c.stop:
			return
		}
	}
}
