package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
)

// APIRequestLogger is the access-log sink, satisfied by
// logging.StandardLogger.
type APIRequestLogger interface {
	LogAPIRequest(method string, path string, statusCode int, duration int64, requestID string)
}

// RequestLogger logs one line per request with its status and latency. An
// incoming X-Request-ID is reused, otherwise one is generated; either way it
// is echoed on the response.
func RequestLogger(logger APIRequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.LogAPIRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds(), requestID)
	}
}
