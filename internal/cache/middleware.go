package cache

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// headerCacheStatus reports whether the response came from cache.
const headerCacheStatus = "X-Cache-Status"

// bodyRecorder tees the handler's response so a 2xx body can be stored
// after the handler returns.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *bodyRecorder) Write(p []byte) (int, error) {
	r.buf.Write(p)
	return r.ResponseWriter.Write(p)
}

func (r *bodyRecorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Middleware serves GET requests read-through. Cached responses replay
// the stored status, content type and body with X-Cache-Status: HIT.
// Clients sending Cache-Control: no-cache bypass the lookup but still
// refresh the stored entry.
func Middleware(c *Cache, callerID func(*gin.Context) string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}
		path := ctx.Request.URL.Path
		if c.policy.TTL(path) <= 0 {
			ctx.Next()
			return
		}

		caller := ""
		if callerID != nil {
			caller = callerID(ctx)
		}
		key := Key(ctx.Request.Method, path, ctx.Request.URL.Query(), caller)

		bypass := strings.Contains(ctx.GetHeader("Cache-Control"), "no-cache")
		if !bypass {
			if entry, ok := c.Lookup(ctx.Request.Context(), key); ok {
				replay(ctx, entry)
				return
			}
		}

		recorder := &bodyRecorder{ResponseWriter: ctx.Writer}
		ctx.Writer = recorder
		ctx.Header(headerCacheStatus, "MISS")
		ctx.Next()

		status := recorder.Status()
		if status < 200 || status >= 300 {
			return
		}
		// Handlers opt out per response with Cache-Control: no-cache.
		if strings.Contains(recorder.Header().Get("Cache-Control"), "no-cache") {
			return
		}
		c.Save(ctx.Request.Context(), key, path, &Entry{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        append([]byte(nil), recorder.buf.Bytes()...),
			StoredAt:    time.Now().UTC(),
		})
	}
}

func replay(ctx *gin.Context, entry *Entry) {
	ctx.Header(headerCacheStatus, "HIT")
	for name, value := range entry.Headers {
		ctx.Header(name, value)
	}
	contentType := entry.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	ctx.Data(entry.Status, contentType, entry.Body)
	ctx.Abort()
}
