package gateway

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/abhishek-genailytics/strataAI-sub000/internal/apierror"
)

// contextKeyStartTime marks when the gateway accepted the request.
const contextKeyStartTime = "request_start"

// Annotate tags every request with an id and start time before any other
// middleware runs. The id rides on error envelopes and access logs.
func Annotate() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set(apierror.ContextKeyRequestID, requestID)
		c.Set(contextKeyStartTime, time.Now())
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Recovery converts handler panics into the structured error envelope
// instead of gin's default stack dump.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"panic":      r,
					"request_id": c.GetString(apierror.ContextKeyRequestID),
					"path":       c.Request.URL.Path,
				}).Error("gateway: recovered from panic")
				apierror.Respond(c, apierror.Internal())
			}
		}()
		c.Next()
	}
}

// AccessLog emits one structured line per completed request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		started, _ := c.Get(contextKeyStartTime)
		latency := time.Duration(0)
		if t, ok := started.(time.Time); ok {
			latency = time.Since(t)
		}
		log.WithFields(log.Fields{
			"request_id": c.GetString(apierror.ContextKeyRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("request completed")
	}
}

// requestLatencyMS reports elapsed time since Annotate ran.
func requestLatencyMS(c *gin.Context) int64 {
	v, ok := c.Get(contextKeyStartTime)
	if !ok {
		return 0
	}
	t, ok := v.(time.Time)
	if !ok {
		return 0
	}
	return time.Since(t).Milliseconds()
}
