package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-call-agent/pkg/utils"
)

// Limiter caps the number of calls running at once.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLimiter shares the cap across every agent process using one counter.
// The TTL frees slots leaked by a crashed process.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

const DefaultLimiterKey = "voice:calls:active"

func NewRedisLimiter(rdb *redis.Client, key string, limit int, ttl time.Duration) *RedisLimiter {
	if key == "" {
		key = DefaultLimiterKey
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}
