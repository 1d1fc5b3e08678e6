package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter blocks until one more message may be sent.
type Limiter interface {
	Wait(ctx context.Context) error
}

// WindowLimiter allows at most max sends in any sliding window. It is local
// to the process.
type WindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time
	now    func() time.Time
}

// NewWindowLimiter returns a limiter admitting max sends per window. A
// non-positive max disables limiting.
func NewWindowLimiter(max int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{max: max, window: window, now: time.Now}
}

// Wait reserves a slot, sleeping until the oldest send leaves the window.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	if l.max <= 0 || l.window <= 0 {
		return ctx.Err()
	}
	for {
		delay := l.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *WindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	l.sent = l.sent[i:]

	if len(l.sent) < l.max {
		l.sent = append(l.sent, now)
		return 0
	}
	if d := l.sent[0].Add(l.window).Sub(now); d > 0 {
		return d
	}
	return time.Millisecond
}

// Fixed-window counter: admit only while the bucket stays within the limit.
const windowLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("PEXPIRE", key, ttl)
end
return {1, newVal}
`

// RedisWindowLimiter enforces max sends per fixed window across every
// process sharing the Redis key prefix.
type RedisWindowLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedisWindowLimiter returns a limiter counting under "<key>:<bucket>".
func NewRedisWindowLimiter(client *redis.Client, key string, max int, window time.Duration) *RedisWindowLimiter {
	return &RedisWindowLimiter{
		client: client,
		script: redis.NewScript(windowLimitLuaScript),
		prefix: key,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// NewRedisClientFromURL connects and pings a Redis server.
func NewRedisClientFromURL(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Wait blocks until the shared counter admits one more send.
func (l *RedisWindowLimiter) Wait(ctx context.Context) error {
	if l.max <= 0 || l.window <= 0 {
		return ctx.Err()
	}
	for {
		allowed, retryIn, err := l.take(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(retryIn)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *RedisWindowLimiter) take(ctx context.Context) (bool, time.Duration, error) {
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	key := l.prefix + ":" + strconv.FormatInt(bucket, 10)

	res, err := l.script.Run(ctx, l.client, []string{key}, l.max, l.window.Milliseconds()+1000).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) < 1 {
		return false, 0, fmt.Errorf("rate limit check: unexpected reply %v", res)
	}
	if allowed, _ := res[0].(int64); allowed == 1 {
		return true, 0, nil
	}

	next := time.Unix(0, (bucket+1)*int64(l.window))
	return false, next.Sub(now), nil
}
