package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/auth"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/cache"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/ratelimit"
	"github.com/abhishek-genailytics/strataAI-sub000/internal/usage"
)

// SystemHandler serves the operational endpoints under /v1/system and the
// health check.
type SystemHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	cache    *cache.Cache
	limiter  *ratelimit.Manager
	windows  ratelimit.Windows
	recorder *usage.Recorder
}

// NewSystemHandler constructs the handler. The redis client may be nil.
func NewSystemHandler(db *gorm.DB, rdb *redis.Client, c *cache.Cache, limiter *ratelimit.Manager, windows ratelimit.Windows, recorder *usage.Recorder) *SystemHandler {
	return &SystemHandler{db: db, redis: rdb, cache: c, limiter: limiter, windows: windows, recorder: recorder}
}

// Healthz reports process liveness plus dependency reachability. It always
// answers 200 while the process can serve; degraded dependencies are
// reported in the body.
func (h *SystemHandler) Healthz(c *gin.Context) {
	status := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}

	dbStatus := "ok"
	if h.db != nil {
		if sqlDB, errDB := h.db.DB(); errDB != nil {
			dbStatus = "error"
		} else if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
			dbStatus = "error"
		}
	} else {
		dbStatus = "not configured"
	}
	status["database"] = dbStatus

	redisStatus := "not configured"
	if h.redis != nil {
		redisStatus = "ok"
		if errPing := h.redis.Ping(c.Request.Context()).Err(); errPing != nil {
			redisStatus = "error"
		}
	}
	status["redis"] = redisStatus

	if dbStatus == "error" {
		status["status"] = "degraded"
	}
	c.JSON(http.StatusOK, status)
}

// CacheStats returns cache counters.
func (h *SystemHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": h.cache.Stats(c.Request.Context())})
}

// CacheClear flushes the whole cache.
func (h *SystemHandler) CacheClear(c *gin.Context) {
	removed, errFlush := h.cache.Flush(c.Request.Context())
	if errFlush != nil {
		log.WithError(errFlush).Error("system: cache flush failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": removed})
}

// CacheInvalidate removes entries whose key contains the given pattern.
func (h *SystemHandler) CacheInvalidate(c *gin.Context) {
	var body struct {
		Pattern string `json:"pattern"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.Pattern) == "" {
		apierror.Respond(c, apierror.Validation("pattern is required"))
		return
	}
	removed, errInv := h.cache.InvalidatePattern(c.Request.Context(), strings.TrimSpace(body.Pattern))
	if errInv != nil {
		log.WithError(errInv).Error("system: cache invalidation failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": removed})
}

// CacheInvalidateUser removes every entry cached for one caller.
func (h *SystemHandler) CacheInvalidateUser(c *gin.Context) {
	callerID := strings.TrimSpace(c.Param("id"))
	if callerID == "" {
		apierror.Respond(c, apierror.Validation("caller id is required"))
		return
	}
	removed, errInv := h.cache.InvalidateCaller(c.Request.Context(), callerID)
	if errInv != nil {
		log.WithError(errInv).Error("system: caller cache invalidation failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": removed})
}

// CacheInvalidateEndpoint removes every entry cached for one path across
// all callers.
func (h *SystemHandler) CacheInvalidateEndpoint(c *gin.Context) {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		apierror.Respond(c, apierror.Validation("path query parameter is required"))
		return
	}
	removed, errInv := h.cache.InvalidatePattern(c.Request.Context(), path)
	if errInv != nil {
		log.WithError(errInv).Error("system: endpoint cache invalidation failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invalidated": removed})
}

// RateLimitStatus reports the limiter backend and configured windows.
func (h *SystemHandler) RateLimitStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  ratelimit.StatusSnapshot(h.limiter, h.windows),
	})
}

// UsageSummary reports the calling organization's usage over a window
// given in hours, defaulting to 24.
func (h *SystemHandler) UsageSummary(c *gin.Context) {
	identity := auth.IdentityFromContext(c)

	hours := 24
	if raw := strings.TrimSpace(c.Query("hours")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 || parsed > 24*90 {
			apierror.Respond(c, apierror.Validation("hours must be a positive integer up to %d", 24*90))
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	summary, errSum := h.recorder.Summarize(c.Request.Context(), identity.OrganizationID, since)
	if errSum != nil {
		log.WithError(errSum).Error("system: usage summary failed")
		apierror.Respond(c, apierror.Internal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "since": since.Format(time.RFC3339), "summary": summary})
}
