package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ledgersync/internal/logger"
)

const requestIDKey = "requestID"

// RequestLogging tags each request with an id (reusing a caller-supplied
// X-Request-ID) and logs one line per request once it completes.
func RequestLogging() gin.HandlerFunc {
	log := logger.Named("gateway")
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		subject, _ := Subject(c)
		log.Infow("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"collection", c.Param("collection"),
			"subject", subject,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
