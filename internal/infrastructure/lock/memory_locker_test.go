package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/procurement/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_ExcludesSameKey(t *testing.T) {
	locker := NewMemoryLocker(WithTimeout(5 * time.Second))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "shop:a")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, locker.Held())
}

func TestMemoryLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewMemoryLocker(WithTimeout(50 * time.Millisecond))
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, "shop:a")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, "shop:b")
	require.NoError(t, err)
	releaseB()
}

func TestMemoryLocker_TimeoutIsResourceBusy(t *testing.T) {
	locker := NewMemoryLocker(WithTimeout(30 * time.Millisecond))
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "shop:a")
	require.NoError(t, err)

	start := time.Now()
	_, err = locker.Acquire(ctx, "shop:a")
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindResourceBusy))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	release()
	release()

	again, err := locker.Acquire(ctx, "shop:a")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, locker.Held())
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	locker := NewMemoryLocker(WithTimeout(time.Second))

	release, err := locker.Acquire(context.Background(), "shop:a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "shop:a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquireAll_NoDeadlockOnOverlappingSets(t *testing.T) {
	locker := NewMemoryLocker(WithTimeout(2 * time.Second))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		keys := []string{"shop:a", "shop:b", "shop:c"}
		if i%2 == 1 {
			keys = []string{"shop:c", "shop:b", "shop:a"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := shared.AcquireAll(ctx, locker, keys...)
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(time.Millisecond)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, locker.Held())
}
