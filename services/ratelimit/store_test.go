package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_Attempt(t *testing.T) {
	ctx := context.Background()

	t.Run("counts up to max then rejects without incrementing", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		store.SetClock(clock.Now)

		first, err := store.Attempt(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, first.Allowed)
		assert.Equal(t, 1, first.Count)
		assert.Equal(t, clock.Now().Add(time.Minute), first.ResetAt)

		second, _ := store.Attempt(ctx, "k", 2, time.Minute)
		assert.True(t, second.Allowed)
		assert.Equal(t, 2, second.Count)

		for range 3 {
			rejected, _ := store.Attempt(ctx, "k", 2, time.Minute)
			assert.False(t, rejected.Allowed)
			assert.Equal(t, 2, rejected.Count)
		}
	})

	t.Run("window does not slide on later hits", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		store.SetClock(clock.Now)

		first, _ := store.Attempt(ctx, "k", 5, time.Minute)
		clock.Advance(30 * time.Second)
		second, _ := store.Attempt(ctx, "k", 5, time.Minute)

		assert.Equal(t, first.ResetAt, second.ResetAt)
	})

	t.Run("expired window starts fresh", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		store.SetClock(clock.Now)

		store.Attempt(ctx, "k", 1, time.Minute)
		rejected, _ := store.Attempt(ctx, "k", 1, time.Minute)
		require.False(t, rejected.Allowed)

		clock.Advance(time.Minute)

		fresh, _ := store.Attempt(ctx, "k", 1, time.Minute)
		assert.True(t, fresh.Allowed)
		assert.Equal(t, 1, fresh.Count)
	})

	t.Run("reset clears the bucket", func(t *testing.T) {
		store := NewMemoryStore()

		store.Attempt(ctx, "k", 1, time.Minute)
		require.NoError(t, store.Reset(ctx, "k"))

		attempt, _ := store.Attempt(ctx, "k", 1, time.Minute)
		assert.True(t, attempt.Allowed)
	})

	t.Run("expired buckets are pruned by later traffic", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryStore()
		store.SetClock(clock.Now)

		store.Attempt(ctx, "a", 1, time.Second)
		store.Attempt(ctx, "b", 1, time.Second)
		assert.Equal(t, 2, store.Len())

		clock.Advance(2 * time.Minute)
		store.Attempt(ctx, "c", 1, time.Minute)

		assert.Equal(t, 1, store.Len())
	})

	t.Run("concurrent attempts never exceed max", func(t *testing.T) {
		store := NewMemoryStore()

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, _ := store.Attempt(ctx, "k", 10, time.Minute)
				if a.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, allowed)
	})
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRedisStore_Attempt(t *testing.T) {
	ctx := context.Background()

	t.Run("counts up to max then rejects without incrementing", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisStore(client, "gatekeep:")

		for i := 1; i <= 2; i++ {
			attempt, err := store.Attempt(ctx, "k", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, attempt.Allowed)
			assert.Equal(t, i, attempt.Count)
		}

		rejected, err := store.Attempt(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, rejected.Allowed)
		assert.Equal(t, 2, rejected.Count)

		value, err := mr.Get("gatekeep:k")
		require.NoError(t, err)
		assert.Equal(t, "2", value)
		assert.Equal(t, time.Minute, mr.TTL("gatekeep:k"))
	})

	t.Run("window expiry reopens the bucket", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisStore(client, "")

		store.Attempt(ctx, "k", 1, time.Minute)
		rejected, _ := store.Attempt(ctx, "k", 1, time.Minute)
		require.False(t, rejected.Allowed)

		mr.FastForward(time.Minute + time.Second)

		attempt, err := store.Attempt(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, attempt.Allowed)
	})

	t.Run("reset removes the key", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := NewRedisStore(client, "p:")

		store.Attempt(ctx, "k", 1, time.Minute)
		require.NoError(t, store.Reset(ctx, "k"))

		assert.False(t, mr.Exists("p:k"))
	})

	t.Run("unavailable server", func(t *testing.T) {
		_, client := newTestRedis(t)
		store := NewRedisStore(client, "")
		client.Close()

		_, err := store.Attempt(ctx, "k", 1, time.Minute)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}
