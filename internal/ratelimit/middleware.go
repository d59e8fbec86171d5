package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
)

// CallerIDFunc extracts the authenticated caller id from the request
// context, or returns "" for anonymous traffic.
type CallerIDFunc func(c *gin.Context) string

// Middleware enforces admission limits per client. Authenticated callers are
// keyed by their id under the configured windows; anonymous traffic falls to
// a separate, looser per-IP pass so authenticated clients are never
// penalized twice.
func Middleware(m *Manager, windows, anonWindows Windows, callerID CallerIDFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if callerID != nil {
			id = callerID(c)
		}

		key := ClientKey(id, c.ClientIP())
		active := windows
		if id == "" {
			active = anonWindows
		}

		result, errAllow := m.Allow(c.Request.Context(), key, active)
		if errAllow != nil {
			// Fail open: a degraded counter backend costs enforcement, not
			// availability.
			log.WithError(errAllow).Warn("rate limit: check failed, admitting request")
			result = Result{Allowed: true}
		}
		if result.Limit <= 0 {
			// Fail-open admissions carry no counter state; report the
			// configured minute budget so clients still see their limits.
			result.Window = WindowMinute
			result.Limit = active.PerMinute
			result.Remaining = active.PerMinute
			result.Reset = time.Now().Truncate(time.Minute).Add(time.Minute)
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		}

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfter))
			apierror.Respond(c, apierror.RateLimited(result.RetryAfter))
			return
		}
		c.Next()
	}
}

// AnonWindows derives the looser unauthenticated-IP limits from the
// configured authenticated windows. IP keys can aggregate many callers
// behind one NAT, so their shared budget is larger.
func AnonWindows(windows Windows) Windows {
	return Windows{
		Burst:       windows.Burst * 2,
		BurstWindow: windows.BurstWindow,
		PerMinute:   windows.PerMinute * 2,
		PerHour:     windows.PerHour * 2,
	}
}

// StatusSnapshot reports the limiter state for the admin surface.
func StatusSnapshot(m *Manager, windows Windows) map[string]any {
	return map[string]any{
		"backend": m.Backend(),
		"windows": map[string]string{
			WindowBurst:  fmt.Sprintf("%d per %s", windows.Burst, windows.BurstWindow),
			WindowMinute: fmt.Sprintf("%d per minute", windows.PerMinute),
			WindowHour:   fmt.Sprintf("%d per hour", windows.PerHour),
		},
	}
}
