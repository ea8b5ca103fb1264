// Package middleware provides gin HTTP middleware for the wsrelayd
// entrypoint (upgrade handshake + auth-internal API routes).
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wsrelay/wsrelay/internal/wslog"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "request_logger"
)

// RequestID assigns a correlation ID to the request (reusing one the
// caller already supplied, for chains that span multiple hops),
// echoes it back in the response header, and binds it onto a
// request-scoped child of wslog.HTTP() so every log line emitted
// while handling this request carries it without repeating
// Str("request_id", ...) at each call site.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		scoped := wslog.HTTP().With().Str(requestIDKey, id).Logger()

		c.Set(requestIDKey, id)
		c.Set(loggerKey, &scoped)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// GetRequestID retrieves the correlation ID assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// RequestLogger retrieves the request-scoped logger RequestID bound
// to the context, falling back to the unscoped HTTP component logger
// for requests that somehow bypassed that middleware (tests, mainly).
func RequestLogger(c *gin.Context) *zerolog.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if logger, ok := l.(*zerolog.Logger); ok {
			return logger
		}
	}
	return wslog.HTTP()
}
