package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/config"
)

// Limiter defines the interface for rate limiting operations
type Limiter interface {
	// Allow checks if a request should be allowed based on rate limits
	// Returns true if allowed, false if rate limit exceeded
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// AllowN checks if N requests should be allowed
	AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error)

	// GetRemaining returns the number of remaining requests in the current window
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// WindowLimiter counts requests per key in fixed windows stored in Redis.
// Counters are shared by every instance talking to the same Redis.
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	fallback    bool // If true, allow requests when Redis is unavailable (fail-open)
	now         func() time.Time
}

// NewWindowLimiter creates a limiter backed by redisClient.
// With fallback set, Redis errors let requests through instead of failing them.
func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, fallback bool) *WindowLimiter {
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		fallback:    fallback,
		now:         time.Now,
	}
}

// SetClock replaces the time source used to pick the current window
func (l *WindowLimiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

// AllowN consumes n units from key's current window. INCRBY and EXPIRE run
// in one transaction so a counter never outlives its window.
func (l *WindowLimiter) AllowN(ctx context.Context, key string, n int, limit int, window time.Duration) (bool, error) {
	if window <= 0 || limit < 0 || n < 0 {
		return false, fmt.Errorf("invalid rate limit rule: n=%d limit=%d window=%s", n, limit, window)
	}
	bucketKey := l.bucketKey(key, window)

	pipe := l.redisClient.TxPipeline()
	incrCmd := pipe.IncrBy(ctx, bucketKey, int64(n))
	pipe.Expire(ctx, bucketKey, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.fallback {
			l.logger.Warn("rate limit check failed, allowing request (fail-open)",
				zap.String("key", key),
				zap.Error(err),
			)
			return true, nil
		}
		l.logger.Error("rate limit check failed",
			zap.String("key", bucketKey),
			zap.Error(err),
		)
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
	}
	return allowed, nil
}

func (l *WindowLimiter) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, window)).Int64()
	if errors.Is(err, redis.Nil) {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(limit-int(count), 0), nil
}

// bucketKey names the counter of the window that contains now
func (l *WindowLimiter) bucketKey(key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d:%d", key, window.Milliseconds(), l.now().UnixNano()/int64(window))
}

// Rule is one limit applied to an endpoint
type Rule struct {
	Limit  int
	Window time.Duration
}

const EndpointJoin = "join"

// RuleForEndpoint returns the rate limit rule for an endpoint name
func RuleForEndpoint(endpoint string, cfg *config.RateLimitConfig) Rule {
	switch endpoint {
	case EndpointJoin:
		return Rule{Limit: cfg.JoinLimit, Window: cfg.JoinWindow}
	default:
		// Default rule: 100 requests per minute
		return Rule{Limit: 100, Window: time.Minute}
	}
}
