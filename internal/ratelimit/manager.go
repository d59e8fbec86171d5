package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// Manager selects a limiter backend and enforces the fail-open policy: a
// reachable Redis enforces shared counters; an unreachable one admits the
// request and logs the fault instead of taking the gateway down. Without
// Redis configured, a process-local memory limiter enforces the windows.
type Manager struct {
	nowFn         func() time.Time
	memoryLimiter Limiter
	redisLimiter  *RedisLimiter

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager constructs a Manager. A nil client selects the memory backend.
func NewManager(client *redis.Client, prefix string, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Manager{
		nowFn:         nowFn,
		memoryLimiter: NewMemoryLimiter(),
	}
	if client != nil {
		m.redisLimiter = NewRedisLimiter(client, prefix)
	}
	return m
}

// Allow checks whether the request should be admitted.
func (m *Manager) Allow(ctx context.Context, key string, windows Windows) (Result, error) {
	if m == nil || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if m.redisLimiter == nil {
		return m.memoryLimiter.Allow(ctx, key, windows, now)
	}
	if m.isBreakerActive(now) {
		return Result{Allowed: true}, nil
	}

	result, errAllow := m.redisLimiter.Allow(ctx, key, windows, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{Allowed: true}, nil
	}
	return result, nil
}

// Backend reports which limiter backend is currently serving checks.
func (m *Manager) Backend() string {
	if m == nil {
		return "none"
	}
	if m.redisLimiter == nil {
		return "memory"
	}
	if m.isBreakerActive(m.nowFn()) {
		return "redis (degraded, failing open)"
	}
	return "redis"
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, failing open")
}
