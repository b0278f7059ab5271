package tabular_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/workforce-engine/tabular"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*tabular.Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
	c := tabular.NewCache(zerolog.Nop())
	c.Now = clock.Now
	return c, clock
}

func counter(n *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n.Add(1)
		return value, nil
	}
}

func TestCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	// GIVEN: A fetch that blocks until released
	cache, _ := newTestCache()
	var fetches atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]string, error) {
		fetches.Add(1)
		<-release
		return []string{"a", "b"}, nil
	}

	// WHEN: Many callers ask for the same cold key at once
	const callers = 20
	var wg sync.WaitGroup
	results := make([]tabular.Result[[]string], callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tabular.Fetch(context.Background(), cache, "Tasks", time.Minute, false, fetch)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// THEN: The backend was hit once and everyone got the value
	assert.Equal(t, int32(1), fetches.Load())
	for _, r := range results {
		assert.Equal(t, []string{"a", "b"}, r.Value)
		assert.False(t, r.Degraded)
	}
}

func TestCache_TTL(t *testing.T) {
	cache, clock := newTestCache()
	var n atomic.Int32
	ctx := context.Background()

	tabular.Fetch(ctx, cache, "Users", 5*time.Minute, false, counter(&n, "v1"))
	clock.Advance(4 * time.Minute)
	r := tabular.Fetch(ctx, cache, "Users", 5*time.Minute, false, counter(&n, "v2"))
	assert.Equal(t, "v1", r.Value)
	assert.Equal(t, int32(1), n.Load())

	clock.Advance(2 * time.Minute)
	r = tabular.Fetch(ctx, cache, "Users", 5*time.Minute, false, counter(&n, "v2"))
	assert.Equal(t, "v2", r.Value)
	assert.Equal(t, int32(2), n.Load())

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Fetches)
}

func TestCache_ForceBypassesFreshness(t *testing.T) {
	cache, _ := newTestCache()
	var n atomic.Int32
	ctx := context.Background()

	tabular.Fetch(ctx, cache, "Tasks", time.Hour, false, counter(&n, "old"))
	r := tabular.Fetch(ctx, cache, "Tasks", time.Hour, true, counter(&n, "new"))

	assert.Equal(t, "new", r.Value)
	assert.Equal(t, int32(2), n.Load())
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	cache, _ := newTestCache()
	var n atomic.Int32
	ctx := context.Background()

	tabular.Fetch(ctx, cache, "Tasks", time.Hour, false, counter(&n, "before"))
	cache.Invalidate("Tasks")
	r := tabular.Fetch(ctx, cache, "Tasks", time.Hour, false, counter(&n, "after"))

	assert.Equal(t, "after", r.Value)
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCache_InvalidateDuringFetchDropsResult(t *testing.T) {
	// GIVEN: A slow fetch in flight
	cache, _ := newTestCache()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		tabular.Fetch(context.Background(), cache, "Tasks", time.Hour, false, func(context.Context) (string, error) {
			close(started)
			<-release
			return "pre-write", nil
		})
	}()
	<-started

	// WHEN: A write invalidates the key before the fetch returns
	cache.Invalidate("Tasks")
	close(release)
	<-done

	// THEN: The pre-write value was not cached
	var n atomic.Int32
	r := tabular.Fetch(context.Background(), cache, "Tasks", time.Hour, false, counter(&n, "post-write"))
	assert.Equal(t, "post-write", r.Value)
	assert.Equal(t, int32(1), n.Load())
}

func TestCache_DegradedServesStale(t *testing.T) {
	cache, clock := newTestCache()
	ctx := context.Background()
	var n atomic.Int32
	boom := errors.New("store down")

	tabular.Fetch(ctx, cache, "Bugs", time.Minute, false, counter(&n, "cached"))
	clock.Advance(10 * time.Minute)

	r := tabular.Fetch(ctx, cache, "Bugs", time.Minute, false, func(context.Context) (string, error) {
		return "", boom
	})
	assert.True(t, r.Degraded)
	assert.Equal(t, "cached", r.Value)
	assert.ErrorIs(t, r.Cause, boom)
}

func TestCache_DegradedWithNothingCached(t *testing.T) {
	cache, _ := newTestCache()
	boom := errors.New("store down")

	r := tabular.Fetch(context.Background(), cache, "Bugs", time.Minute, false, func(context.Context) ([]string, error) {
		return nil, boom
	})
	require.True(t, r.Degraded)
	assert.Nil(t, r.Value)
	assert.ErrorIs(t, r.Cause, boom)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	cache, _ := newTestCache()
	var n atomic.Int32
	ctx := context.Background()
	for _, key := range []string{"report:a", "report:b", "Tasks"} {
		tabular.Fetch(ctx, cache, key, time.Hour, false, counter(&n, key))
	}

	cache.InvalidatePrefix("report:")

	assert.Equal(t, 1, cache.Stats().Entries)
}
