package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	c := NewCoordinator(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func constant(v any, calls *atomic.Int32) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestCoordinator_HitAfterMiss(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	key := shared.CacheKey{Name: "shops"}

	var calls atomic.Int32
	v, err := c.GetOrCompute(ctx, key, constant("a", &calls))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = c.GetOrCompute(ctx, key, constant("b", &calls))
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}

func TestCoordinator_ErrorsAreNotCached(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	key := shared.CacheKey{Name: "listing"}

	boom := errors.New("db down")
	_, err := c.GetOrCompute(ctx, key, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestCoordinator_ExpiredEntriesRecompute(t *testing.T) {
	c := newTestCoordinator(t, WithTTL(10*time.Millisecond))
	ctx := context.Background()
	key := shared.CacheKey{Name: "shops"}

	var calls atomic.Int32
	_, err := c.GetOrCompute(ctx, key, constant(1, &calls))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = c.GetOrCompute(ctx, key, constant(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.sweep(time.Now()))
	assert.Equal(t, 0, c.Len())
}

func TestCoordinator_InvalidateByScope(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	shopA, shopB := uuid.New(), uuid.New()
	catX, catY := uuid.New(), uuid.New()

	keys := map[string]shared.CacheKey{
		"all listings": {Name: "listings"},
		"shop A":       {Name: "listings", ShopID: &shopA},
		"shop B":       {Name: "listings", ShopID: &shopB},
		"shop B cat Y": {Name: "listings", ShopID: &shopB, CategoryID: &catY},
		"shop B cat X": {Name: "listings", ShopID: &shopB, CategoryID: &catX},
	}
	fill := func() {
		for name, key := range keys {
			_, err := c.GetOrCompute(ctx, key, func(context.Context) (any, error) { return name, nil })
			require.NoError(t, err)
		}
	}
	has := func(name string) bool {
		_, ok := c.entries.Load(keys[name].String())
		return ok
	}

	fill()
	c.Invalidate(ctx, shared.ShopScope(shopA))
	assert.False(t, has("all listings"))
	assert.False(t, has("shop A"))
	assert.True(t, has("shop B"))
	assert.True(t, has("shop B cat Y"))

	fill()
	c.Invalidate(ctx, shared.CategoryScope(catX))
	assert.False(t, has("all listings"))
	assert.False(t, has("shop B cat X"))
	assert.False(t, has("shop A"), "keys without a category filter span every category")
	assert.True(t, has("shop B cat Y"))

	fill()
	c.Invalidate(ctx, shared.AllScope())
	assert.Equal(t, 0, c.Len())

	fill()
	c.Invalidate(ctx, shared.CacheScope{})
	assert.Equal(t, len(keys), c.Len())
}

func TestCoordinator_ComputeRacingInvalidationIsNotStored(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	shop := uuid.New()
	key := shared.CacheKey{Name: "listings", ShopID: &shop}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan any)
	go func() {
		v, _ := c.GetOrCompute(ctx, key, func(context.Context) (any, error) {
			close(entered)
			<-proceed
			return "stale", nil
		})
		done <- v
	}()

	<-entered
	c.Invalidate(ctx, shared.ShopScope(shop))
	close(proceed)

	assert.Equal(t, "stale", <-done, "the caller still receives its own result")
	assert.Equal(t, 0, c.Len(), "a result computed before an overlapping invalidation must not be stored")

	var calls atomic.Int32
	v, err := c.GetOrCompute(ctx, key, constant("fresh", &calls))
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestCoordinator_ComputeRacingUnrelatedInvalidationIsStored(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	shop, other := uuid.New(), uuid.New()
	key := shared.CacheKey{Name: "listings", ShopID: &shop}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = c.GetOrCompute(ctx, key, func(context.Context) (any, error) {
			close(entered)
			<-proceed
			return "v", nil
		})
		close(done)
	}()

	<-entered
	c.Invalidate(ctx, shared.ShopScope(other))
	close(proceed)
	<-done

	assert.Equal(t, 1, c.Len())
}

func TestCoordinator_ConcurrentMissesShareCompute(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	key := shared.CacheKey{Name: "shops"}

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute(ctx, key, compute)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(10))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Len())
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	scopes []shared.CacheScope
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, scope shared.CacheScope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scopes = append(b.scopes, scope)
	return b.err
}

func TestCoordinator_BroadcastsLocalButNotRemoteInvalidations(t *testing.T) {
	b := &recordingBroadcaster{err: errors.New("redis down")}
	c := newTestCoordinator(t, WithBroadcaster(b))
	ctx := context.Background()
	shop := uuid.New()

	c.Invalidate(ctx, shared.ShopScope(shop))
	c.ApplyRemote(shared.AllScope())

	require.Len(t, b.scopes, 1)
	assert.Equal(t, []uuid.UUID{shop}, b.scopes[0].Shops)
	assert.Equal(t, int64(2), c.Stats().Invalidations)
}

func TestCoordinator_Origin(t *testing.T) {
	assert.NotEqual(t, newTestCoordinator(t).Origin(), newTestCoordinator(t).Origin())
	assert.Equal(t, "node-a", newTestCoordinator(t, WithOrigin("node-a")).Origin())
	assert.NotEmpty(t, newTestCoordinator(t, WithOrigin("")).Origin())
}

func TestCoordinator_FlushAudit(t *testing.T) {
	c := newTestCoordinator(t, WithAuditSize(2))
	ctx := context.Background()
	shop, category := uuid.New(), uuid.New()

	var calls atomic.Int32
	_, _ = c.GetOrCompute(ctx, shared.CacheKey{Name: "listings", ShopID: &shop}, constant(1, &calls))

	assert.Equal(t, 1, c.FlushShop(ctx, shop, "alice", "price fix"))
	assert.Equal(t, 0, c.FlushCategory(ctx, category, "bob", ""))
	assert.Equal(t, 0, c.FlushAll(ctx, "carol", "deploy"))

	audit := c.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "carol", audit[0].Actor)
	assert.Equal(t, "all", audit[0].Scope)
	assert.Equal(t, "bob", audit[1].Actor)
	assert.Equal(t, "category:"+category.String(), audit[1].Scope)

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Flushes)
	require.NotNil(t, stats.LastFlushAt)
	assert.WithinDuration(t, time.Now(), *stats.LastFlushAt, time.Second)
}

type countingMetrics struct {
	hits, misses atomic.Int32
}

func (m *countingMetrics) RecordCacheLookup(_ context.Context, _ string, hit bool) {
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
}

func TestCoordinator_ReportsLookups(t *testing.T) {
	m := &countingMetrics{}
	c := newTestCoordinator(t, WithMetrics(m))
	ctx := context.Background()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := c.GetOrCompute(ctx, shared.CacheKey{Name: "shops"}, constant(1, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), m.hits.Load())
	assert.Equal(t, int32(1), m.misses.Load())
}
