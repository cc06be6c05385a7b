package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total float64 `json:"total"`
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Total: float64(calls)}, nil
	}

	key, err := c.BuildKey(ctx, "report", "receita", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, "report:receita:2025-03:v1", key)

	var got payload
	hit, err := c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, got.Total)

	hit, err = c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "report", "receita", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, "report:receita:2025-03:v2", key)

	hit, err = c.FetchJSON(ctx, key, &got, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2.0, got.Total)
}

func TestTTLExpiresEntries(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	var got payload
	_, err := c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return payload{Total: 1}, nil })
	require.NoError(t, err)
	require.True(t, mr.Exists("k"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("k"))
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	c, mr := newCache(t)
	boom := errors.New("boom")
	var got payload
	_, err := c.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestConcurrentMissesShareLoader(t *testing.T) {
	c, _ := newCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return payload{Total: 7}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got payload
			_, err := c.FetchJSON(context.Background(), "shared", &got, loader)
			assert.NoError(t, err)
			assert.Equal(t, 7.0, got.Total)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestNilCacheRunsLoader(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	var got payload
	hit, err := c.FetchJSON(ctx, "k", &got, func(context.Context) (any, error) { return payload{Total: 3}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3.0, got.Total)
	assert.NoError(t, c.Bump(ctx))

	key, err := c.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", key)
}
