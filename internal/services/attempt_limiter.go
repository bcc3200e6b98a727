package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter locks a key out after repeated failures
type AttemptLimiter interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// RedisAttemptLimiter counts failures with INCR and lets the counter expire
// window after the first failure
type RedisAttemptLimiter struct {
	client      *redis.Client
	prefix      string
	maxAttempts int64
	window      time.Duration
}

func NewRedisAttemptLimiter(client *redis.Client, prefix string, maxAttempts int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		client:      client,
		prefix:      prefix,
		maxAttempts: int64(maxAttempts),
		window:      window,
	}
}

func (l *RedisAttemptLimiter) key(k string) string {
	return l.prefix + k
}

// Check returns models.ErrTooManyRequests while key is locked out
func (l *RedisAttemptLimiter) Check(ctx context.Context, key string) error {
	count, err := l.client.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: attempt limiter: %v", models.ErrTransient, err)
	}
	if count >= l.maxAttempts {
		return models.ErrTooManyRequests
	}
	return nil
}

// RecordFailure counts a failure and reports a lockout once the limit is hit
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: attempt limiter: %v", models.ErrTransient, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, l.key(key), l.window).Err(); err != nil {
			return fmt.Errorf("%w: attempt limiter: %v", models.ErrTransient, err)
		}
	}
	if count >= l.maxAttempts {
		return models.ErrTooManyRequests
	}
	return nil
}

// Reset clears the failure count after a success
func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: attempt limiter: %v", models.ErrTransient, err)
	}
	return nil
}
