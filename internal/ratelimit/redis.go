package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript returns the post-increment count and the window's remaining
// time in milliseconds.
const incrScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

const redisTimeout = 250 * time.Millisecond

// Redis shares counters across every process pointed at the same server.
// When Redis is unreachable it fails open and logs.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	script *redis.Script
	logger *slog.Logger
	now    func() time.Time
}

func NewRedis(client *redis.Client, limit int, period time.Duration, prefix string, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "hireflow:ratelimit"
	}
	return &Redis{
		client: client,
		limit:  limit,
		window: period,
		prefix: prefix,
		script: redis.NewScript(incrScript),
		logger: logger.With("component", "ratelimit"),
		now:    time.Now,
	}
}

func (r *Redis) key(k string) string {
	if k == "" {
		k = UnknownKey
	}
	return r.prefix + ":" + k
}

func (r *Redis) Check(ctx context.Context, key string) Result {
	now := r.now()
	open := Result{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: now.Add(r.window)}

	ttl := r.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	vals, err := r.script.Run(ctx, r.client, []string{r.key(key)}, ttl).Int64Slice()
	if err != nil || len(vals) != 2 {
		r.logger.Warn("rate limit check failed, allowing request", "error", err)
		return open
	}

	count, pttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	res := Result{Limit: r.limit, ResetAt: now.Add(pttl)}
	if count > r.limit {
		return res
	}
	res.Allowed = true
	res.Remaining = r.limit - count
	return res
}

// Reset deletes every counter under the prefix.
func (r *Redis) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan rate limit keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete rate limit keys: %w", err)
	}
	return nil
}
