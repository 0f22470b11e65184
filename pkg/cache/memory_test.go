package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func TestMemoryCacheStructRoundTrip(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "p", point{X: 3, Y: 1.5}, time.Minute))
	var got point
	require.NoError(t, mc.Get(ctx, "p", &got))
	assert.Equal(t, point{X: 3, Y: 1.5}, got)

	var raw string
	require.NoError(t, mc.Get(ctx, "p", &raw))
	assert.JSONEq(t, `{"x":3,"y":1.5}`, raw)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)
	var s string
	err := mc.Get(ctx, "k", &s)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer mc.Close()
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	now = now.Add(time.Second)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok, "b should be evicted")
	ok, _ = mc.Exists(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryCacheIncrementAndLock(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := mc.Increment(ctx, "count")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ok, err := mc.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, _ = mc.TryLock(ctx, "lock", time.Minute)
	assert.True(t, ok)
}

func TestLayeredCacheReadsThroughL2(t *testing.T) {
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	defer l2.Close()
	lc := NewLayeredCache(l2)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "p", point{X: 7}, time.Minute))
	var got point
	require.NoError(t, lc.Get(ctx, "p", &got))
	assert.Equal(t, 7, got.X)

	// second read is served by L1 even after L2 loses the key
	require.NoError(t, l2.Delete(ctx, "p"))
	got = point{}
	require.NoError(t, lc.Get(ctx, "p", &got))
	assert.Equal(t, 7, got.X)
}

func TestLayeredCacheCloseReleasesBothTiers(t *testing.T) {
	l2 := NewMemoryCache()
	var svc Service = NewLayeredCache(l2)
	require.NoError(t, svc.Close())

	select {
	case <-l2.stop:
	default:
		t.Fatal("l2 janitor still running")
	}
}
