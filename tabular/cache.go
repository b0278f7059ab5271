/*
cache.go - Read-through cache with in-flight request deduplication

PURPOSE:
  Keeps TTL-bounded copies of whole collections so screens do not scan the
  remote store on every request, and collapses concurrent identical reads
  into one backend fetch.

SEMANTICS:
  - Entries expire lazily: age is checked on read, nothing is evicted in
    the background.
  - Concurrent callers for the same key share one in-flight fetch
    (singleflight keyed exactly like the cache).
  - Writes invalidate; they never patch cached values. Invalidation also
    detaches any in-flight fetch for the key so a read that started before
    the write cannot repopulate the cache with pre-write data.
  - force skips the freshness check but still shares in-flight fetches
    started after the last invalidation.
  - If a fetch fails, the last cached value (of any age) is served and
    flagged Degraded. With nothing cached the zero value is returned,
    flagged Degraded, with the cause attached.

LIFECYCLE:
  Construct one Cache at process start and inject it. There is no package
  level instance.

SEE ALSO:
  - repository.go: One cache key per table
*/
package tabular

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache stores fetched values per key.
type Cache struct {
	// Now is the clock used for TTL checks.
	Now func() time.Time

	logger zerolog.Logger
	group  singleflight.Group

	mu          sync.Mutex
	entries     map[string]cacheEntry
	generations map[string]uint64

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// CacheStats is a point-in-time counter snapshot.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
}

// Result is a cache read. Cause is set whenever Degraded is true.
type Result[T any] struct {
	Value     T
	FetchedAt time.Time
	Degraded  bool
	Cause     error
}

// NewCache creates an empty cache.
func NewCache(logger zerolog.Logger) *Cache {
	return &Cache{
		Now:         time.Now,
		logger:      logger,
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]uint64),
	}
}

// Fetch returns the cached value for key when younger than ttl, otherwise
// calls fetch once on behalf of every concurrent caller.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, force bool, fetch func(context.Context) (T, error)) Result[T] {
	if !force {
		if v, at, ok := c.lookup(key); ok && c.Now().Sub(at) < ttl {
			c.hits.Add(1)
			return Result[T]{Value: v.(T), FetchedAt: at}
		}
	}
	c.misses.Add(1)

	gen := c.generation(key)
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.fetches.Add(1)
		value, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, value)
		return value, nil
	})
	if err == nil {
		return Result[T]{Value: v.(T), FetchedAt: c.Now()}
	}

	if stale, at, ok := c.lookup(key); ok {
		c.logger.Warn().Err(err).Str("key", key).Time("fetched_at", at).Msg("fetch failed, serving stale cache entry")
		return Result[T]{Value: stale.(T), FetchedAt: at, Degraded: true, Cause: err}
	}
	c.logger.Warn().Err(err).Str("key", key).Msg("fetch failed with nothing cached")
	var zero T
	return Result[T]{Value: zero, Degraded: true, Cause: err}
}

func (c *Cache) lookup(key string) (any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.value, e.fetchedAt, ok
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

func (c *Cache) store(key string, gen uint64, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		// Invalidated while the fetch was in flight.
		return
	}
	c.entries[key] = cacheEntry{value: value, fetchedAt: c.Now()}
}

// Invalidate drops key so the next read refetches.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.generations[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	var keys []string
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.Invalidate(k)
	}
}

// Stats returns counters for health reporting.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return CacheStats{
		Entries: n,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
	}
}
