package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Gopher0727/GroupHub/config"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, fallback bool) (*WindowLimiter, *miniredis.Miniredis, *testClock) {
	client, mr := setupTestRedis(t)
	clock := &testClock{now: start}
	l := NewWindowLimiter(client, zap.NewNop(), fallback)
	l.SetClock(clock.Now)
	return l, mr, clock
}

func TestWindowLimiter_Allow(t *testing.T) {
	limiter, _, _ := newLimiter(t, false)
	ctx := context.Background()

	for i := range 5 {
		allowed, err := limiter.Allow(ctx, "join:u1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "join:u1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "request should be denied after limit exceeded")

	// other keys keep their own counters
	allowed, err = limiter.Allow(ctx, "join:u2", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_AllowN(t *testing.T) {
	limiter, _, _ := newLimiter(t, false)
	ctx := context.Background()

	allowed, err := limiter.AllowN(ctx, "k", 7, 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.AllowN(ctx, "k", 3, 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.AllowN(ctx, "k", 1, 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = limiter.AllowN(ctx, "k", 1, 10, 0)
	assert.Error(t, err)
}

func TestWindowLimiter_NewWindow(t *testing.T) {
	limiter, _, clock := newLimiter(t, false)
	ctx := context.Background()

	for range 3 {
		_, err := limiter.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
	}
	allowed, err := limiter.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Advance(time.Minute)
	allowed, err = limiter.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_KeysExpire(t *testing.T) {
	limiter, mr, _ := newLimiter(t, false)

	_, err := limiter.Allow(context.Background(), "k", 3, time.Minute)
	require.NoError(t, err)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute+time.Second, mr.TTL(keys[0]))

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())
}

func TestWindowLimiter_Remaining(t *testing.T) {
	limiter, _, clock := newLimiter(t, false)
	ctx := context.Background()

	remaining, err := limiter.GetRemaining(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.AllowN(ctx, "k", 7, 5, time.Minute)
	require.NoError(t, err)
	remaining, err = limiter.GetRemaining(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// the next window starts full
	clock.Advance(time.Minute)
	remaining, err = limiter.GetRemaining(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestWindowLimiter_RedisDown(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		limiter, mr, _ := newLimiter(t, true)
		mr.Close()

		allowed, err := limiter.Allow(context.Background(), "k", 1, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fail closed", func(t *testing.T) {
		limiter, mr, _ := newLimiter(t, false)
		mr.Close()

		allowed, err := limiter.Allow(context.Background(), "k", 1, time.Minute)
		assert.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestWindowLimiter_Concurrent(t *testing.T) {
	limiter, _, _ := newLimiter(t, false)
	ctx := context.Background()

	var granted atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			allowed, err := limiter.Allow(ctx, "k", 20, time.Minute)
			if err == nil && allowed {
				granted.Add(1)
			}
		})
	}
	wg.Wait()
	assert.Equal(t, int32(20), granted.Load())
}

// Within one window, exactly min(requests, limit) single requests pass.
func TestProperty_WindowGrantsAtMostLimit(t *testing.T) {
	client, mr := setupTestRedis(t)
	rapid.Check(t, func(rt *rapid.T) {
		mr.FlushAll()
		limit := rapid.IntRange(0, 20).Draw(rt, "limit")
		requests := rapid.IntRange(0, 40).Draw(rt, "requests")

		l := NewWindowLimiter(client, zap.NewNop(), false)
		l.SetClock(func() time.Time { return start })

		granted := 0
		for range requests {
			allowed, err := l.Allow(context.Background(), "prop", limit, time.Minute)
			if err != nil {
				rt.Fatalf("allow: %v", err)
			}
			if allowed {
				granted++
			}
		}
		if granted != min(requests, limit) {
			rt.Fatalf("granted %d of %d with limit %d", granted, requests, limit)
		}
	})
}

func TestRuleForEndpoint(t *testing.T) {
	cfg := &config.RateLimitConfig{JoinLimit: 3, JoinWindow: 30 * time.Second}
	assert.Equal(t, Rule{Limit: 3, Window: 30 * time.Second}, RuleForEndpoint(EndpointJoin, cfg))
	assert.Equal(t, Rule{Limit: 100, Window: time.Minute}, RuleForEndpoint("other", cfg))
}
