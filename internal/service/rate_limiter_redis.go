package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cuenta emisiones en una ventana fija y devuelve {conteo, ms hasta que vence la ventana}.
const issueWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

const redisLimiterTimeout = 500 * time.Millisecond

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisRateLimiter comparte la ventana de emisión entre réplicas del bot.
type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int64
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{client: client, window: window, max: int64(max)}
}

func issueWindowKey(userID int64) string {
	return "leech:issue:" + strconv.FormatInt(userID, 10)
}

// Allow deja pasar la emisión cuando Redis falla; el error se devuelve para loguearlo.
func (l *redisRateLimiter) Allow(ctx context.Context, userID int64) (bool, time.Duration, error) {
	if userID == 0 {
		return false, 0, ErrInvalidUser
	}
	ctx, cancel := context.WithTimeout(ctx, redisLimiterTimeout)
	defer cancel()

	res, err := l.client.Eval(ctx, issueWindowScript, []string{issueWindowKey(userID)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return true, 0, fmt.Errorf("issue window: %w", err)
	}
	if len(res) != 2 {
		return true, 0, fmt.Errorf("issue window: unexpected reply %v", res)
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if count > l.max {
		return false, ttl, nil
	}
	return true, 0, nil
}
