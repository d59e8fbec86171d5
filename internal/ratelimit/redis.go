package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter TTLs run slightly longer than the window they count so stale keys
// self-expire without a sweep.
const (
	minuteKeyTTL = 90
	hourKeyTTL   = 3700
)

// allowScript reads all three counters and, only when every window has
// headroom, increments them and refreshes TTLs. Running as one script keeps
// check-then-increment atomic across concurrent requests for the same key.
var allowScript = redis.NewScript(`
local burst = tonumber(redis.call("GET", KEYS[1]) or "0")
local minute = tonumber(redis.call("GET", KEYS[2]) or "0")
local hour = tonumber(redis.call("GET", KEYS[3]) or "0")
local burstLimit = tonumber(ARGV[1])
local minuteLimit = tonumber(ARGV[2])
local hourLimit = tonumber(ARGV[3])

if (burstLimit > 0 and burst >= burstLimit)
	or (minuteLimit > 0 and minute >= minuteLimit)
	or (hourLimit > 0 and hour >= hourLimit) then
	local ttl = redis.call("TTL", KEYS[1])
	return {0, burst, minute, hour, ttl}
end

burst = redis.call("INCR", KEYS[1])
if burst == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[4])
end
minute = redis.call("INCR", KEYS[2])
if minute == 1 then
	redis.call("EXPIRE", KEYS[2], ARGV[5])
end
hour = redis.call("INCR", KEYS[3])
if hour == 1 then
	redis.call("EXPIRE", KEYS[3], ARGV[6])
end
local ttl = redis.call("TTL", KEYS[1])
return {1, burst, minute, hour, ttl}
`)

// RedisLimiter implements the three-window limiter on a shared Redis store,
// allowing horizontally scaled gateways to share counters.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow runs the atomic three-window check-and-increment.
func (l *RedisLimiter) Allow(ctx context.Context, key string, windows Windows, now time.Time) (Result, error) {
	if key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}

	burstWindow := windows.BurstWindow
	if burstWindow <= 0 {
		burstWindow = 10 * time.Second
	}
	minuteIndex := now.Unix() / 60
	hourIndex := now.Unix() / 3600

	keys := []string{
		l.buildKey(key, "burst", 0),
		l.buildKey(key, "m", minuteIndex),
		l.buildKey(key, "h", hourIndex),
	}
	args := []any{
		windows.Burst, windows.PerMinute, windows.PerHour,
		int(burstWindow.Seconds()), minuteKeyTTL, hourKeyTTL,
	}

	res, errEval := allowScript.Run(ctx, l.client, keys, args...).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	values, ok := res.([]any)
	if !ok || len(values) < 5 {
		return Result{}, fmt.Errorf("rate limit redis: unexpected response %T", res)
	}

	allowed := toInt64(values[0]) == 1
	burstCount := int(toInt64(values[1]))
	minuteCount := int(toInt64(values[2]))
	hourCount := int(toInt64(values[3]))
	burstTTL := toInt64(values[4])

	burstReset := now.Add(burstWindow)
	if burstTTL > 0 {
		burstReset = now.Add(time.Duration(burstTTL) * time.Second)
	}

	states := []windowState{
		{kind: WindowBurst, limit: windows.Burst, count: burstCount, reset: burstReset.UTC()},
		{kind: WindowMinute, limit: windows.PerMinute, count: minuteCount, reset: time.Unix((minuteIndex+1)*60, 0).UTC()},
		{kind: WindowHour, limit: windows.PerHour, count: hourCount, reset: time.Unix((hourIndex+1)*3600, 0).UTC()},
	}
	return summarize(states, allowed, now), nil
}

func (l *RedisLimiter) buildKey(key, kind string, index int64) string {
	parts := make([]string, 0, 4)
	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}
	parts = append(parts, "rl", key, kind)
	if index > 0 {
		parts = append(parts, fmt.Sprintf("%d", index))
	}
	return strings.Join(parts, ":")
}

func toInt64(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case uint64:
		return int64(value)
	default:
		return 0
	}
}
