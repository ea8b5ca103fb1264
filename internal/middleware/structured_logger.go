// Package middleware provides gin HTTP middleware for the wsrelayd
// entrypoint. This file implements structured request logging.
//
// Logged fields: request_id, method, path, query, status, duration,
// duration_ms, client_ip, user_agent, user_id/username when
// authenticated, and any accumulated gin errors. Log level follows
// status code: 5xx -> error, 4xx -> warn, else info.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// StructuredLoggerConfig allows customization of structured logging.
type StructuredLoggerConfig struct {
	SkipPaths       []string
	SkipHealthCheck bool
	LogQuery        bool
	LogUserAgent    bool
}

func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipHealthCheck: true,
		LogQuery:        true,
		LogUserAgent:    true,
	}
}

// StructuredLogger logs every request with the default configuration.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfigFunc(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfigFunc builds a structured logger with custom config.
func StructuredLoggerWithConfigFunc(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	if config.SkipHealthCheck {
		skip["/health"] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		logger := RequestLogger(c)
		ev := logger.Info()
		if status >= 500 {
			ev = logger.Error()
		} else if status >= 400 {
			ev = logger.Warn()
		}

		ev = ev.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			ev = ev.Str("query", raw)
		}
		if config.LogUserAgent {
			ev = ev.Str("user_agent", c.Request.UserAgent())
		}
		if userID, exists := c.Get("userID"); exists {
			ev = ev.Interface("user_id", userID)
		}
		if username, exists := c.Get("username"); exists {
			ev = ev.Interface("username", username)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request handled")
	}
}
