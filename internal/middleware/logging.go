package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shearline/booking-core/pkg/logger"
)

// RequestLogging returns a logging middleware that tags every request with
// a generated request id and logs method/path/status/duration, grounded on
// auth-service's middleware/logging.go RequestLogging.
func RequestLogging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		requestLog := log.With("request_id", requestID, "method", method, "path", path,
			"status_code", statusCode, "duration_ms", duration.Milliseconds(), "client_ip", c.ClientIP())

		switch {
		case statusCode >= 500:
			requestLog.Error("request completed with server error")
		case statusCode >= 400:
			requestLog.Warn("request completed with client error")
		default:
			requestLog.Info("request completed")
		}
	}
}
