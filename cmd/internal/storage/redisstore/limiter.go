package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"fumohouse/cmd/identity"
)

// slidingWindow trims the key's sorted set to the window, then records the
// attempt only if the set is below the limit.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// AttemptLimiter is a sliding-window limiter whose state lives in Redis, so
// every instance counts the same attempts.
type AttemptLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewAttemptLimiter returns a limiter allowing limit attempts per key within
// window.
func NewAttemptLimiter(rdb redis.Scripter, prefix string, limit int, window time.Duration) (*AttemptLimiter, error) {
	if rdb == nil {
		return nil, errors.New("redisstore: nil client")
	}
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("redisstore: limit and window must be positive")
	}
	return &AttemptLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}, nil
}

// Allow records an attempt by key at now if it fits in the window.
func (l *AttemptLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	member, err := identity.NewULID(now)
	if err != nil {
		return false, err
	}
	res, err := slidingWindow.Run(ctx, l.rdb, []string{l.key(key)},
		now.UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		member,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *AttemptLimiter) key(k string) string {
	if k == "" {
		k = "unknown"
	}
	return l.prefix + "attempts:" + k
}

