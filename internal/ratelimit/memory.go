package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window  int64
	count   int
	expires time.Time
}

// MemoryLimiter implements the three-window limiter in process memory. It
// backs tests, single-node deployments and the fail-open path when Redis is
// unavailable.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*memoryEntry)}
}

// Allow checks all three windows and increments them as one atomic unit
// under the limiter mutex.
func (l *MemoryLimiter) Allow(_ context.Context, key string, windows Windows, now time.Time) (Result, error) {
	if key == "" {
		return Result{Allowed: true}, nil
	}

	burstWindow := windows.BurstWindow
	if burstWindow <= 0 {
		burstWindow = 10 * time.Second
	}
	minuteIndex := now.Unix() / 60
	hourIndex := now.Unix() / 3600
	minuteReset := time.Unix((minuteIndex+1)*60, 0).UTC()
	hourReset := time.Unix((hourIndex+1)*3600, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	burst := l.rolling(key+":burst", now, burstWindow)
	minute := l.fixed(key+":m", minuteIndex)
	hour := l.fixed(key+":h", hourIndex)

	states := []windowState{
		{kind: WindowBurst, limit: windows.Burst, count: burst.count, reset: burst.expires},
		{kind: WindowMinute, limit: windows.PerMinute, count: minute.count, reset: minuteReset},
		{kind: WindowHour, limit: windows.PerHour, count: hour.count, reset: hourReset},
	}
	for _, state := range states {
		if state.limit > 0 && state.count >= state.limit {
			return summarize(states, false, now), nil
		}
	}

	burst.count++
	minute.count++
	hour.count++
	for i := range states {
		states[i].count++
	}
	return summarize(states, true, now), nil
}

// rolling returns the burst entry, resetting it when its TTL has lapsed.
func (l *MemoryLimiter) rolling(key string, now time.Time, window time.Duration) *memoryEntry {
	entry := l.counters[key]
	if entry == nil || now.After(entry.expires) {
		entry = &memoryEntry{expires: now.Add(window)}
		l.counters[key] = entry
	}
	return entry
}

// fixed returns the entry for a fixed window index, resetting on rollover.
func (l *MemoryLimiter) fixed(key string, index int64) *memoryEntry {
	entry := l.counters[key]
	if entry == nil || entry.window != index {
		entry = &memoryEntry{window: index}
		l.counters[key] = entry
	}
	return entry
}
