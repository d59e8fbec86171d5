package ratelimit

import (
	"context"
	"time"
)

// Window kinds checked on every admission.
const (
	WindowBurst  = "burst"
	WindowMinute = "minute"
	WindowHour   = "hour"
)

// Windows holds the three per-client admission limits. Burst uses a rolling
// TTL counter; minute and hour use fixed window indexes.
type Windows struct {
	Burst       int
	BurstWindow time.Duration
	PerMinute   int
	PerHour     int
}

// Result describes the outcome of a rate limit check. Limit, Remaining and
// Reset describe the most constrained window and feed the X-RateLimit-*
// response headers.
type Result struct {
	Allowed    bool
	Window     string
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int
}

// Limiter admits or rejects a request for a client key. The three-window
// check-and-increment is atomic as a unit: a rejected request increments
// nothing.
type Limiter interface {
	Allow(ctx context.Context, key string, windows Windows, now time.Time) (Result, error)
}

// windowState is one window's counter snapshot after an Allow call.
type windowState struct {
	kind  string
	limit int
	count int
	reset time.Time
}

// summarize reduces per-window states to the client-facing result. The
// reported window is the one with the least headroom; on rejection it is the
// first window at capacity.
func summarize(states []windowState, allowed bool, now time.Time) Result {
	result := Result{Allowed: allowed}
	best := -1
	for i, state := range states {
		if state.limit <= 0 {
			continue
		}
		if !allowed && state.count >= state.limit {
			best = i
			break
		}
		if best < 0 || headroom(state) < headroom(states[best]) {
			best = i
		}
	}
	if best < 0 {
		result.Allowed = true
		return result
	}

	state := states[best]
	result.Window = state.kind
	result.Limit = state.limit
	result.Remaining = state.limit - state.count
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	result.Reset = state.reset
	if !allowed {
		retryAfter := int(state.reset.Sub(now).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		result.RetryAfter = retryAfter
	}
	return result
}

func headroom(state windowState) int {
	return state.limit - state.count
}
