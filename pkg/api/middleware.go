package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// workerIDKey is the gin context key holding the authenticated worker id.
const workerIDKey = "worker_id"

// RequireWorkerID rejects requests without the X-Worker-ID header. Workers
// identify themselves with an opaque per-process id; there is no further
// authentication on the internal surface.
func RequireWorkerID() gin.HandlerFunc {
	return func(c *gin.Context) {
		workerID := c.GetHeader("X-Worker-ID")
		if workerID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				gin.H{"error": "X-Worker-ID header missing"})
			return
		}
		c.Set(workerIDKey, workerID)
		c.Next()
	}
}

// requestLogger logs each request with method, path, status, and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Heartbeats arrive every 15s per owned user; keep them at debug.
		logFn := slog.Info
		if c.FullPath() == "/api/users/heartbeat/:telegram_id" {
			logFn = slog.Debug
		}
		logFn("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
