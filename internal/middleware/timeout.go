package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig bounds how long a single HTTP request may run before the
// handler is aborted with 408. WebSocket upgrade endpoints are excluded
// since they're expected to run for the life of the connection.
type TimeoutConfig struct {
	Timeout       time.Duration
	ErrorMessage  string
	ExcludedPaths []string
}

// DefaultTimeoutConfig excludes /ws and /bunchy, the two upgrade endpoints.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:       30 * time.Second,
		ErrorMessage:  "Request timeout",
		ExcludedPaths: []string{"/ws", "/bunchy"},
	}
}

// Timeout enforces config.Timeout on every request whose path isn't in
// ExcludedPaths, running the handler in a goroutine so it can be abandoned
// on timeout without blocking the response.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, excluded := range config.ExcludedPaths {
			if strings.HasPrefix(path, excluded) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   config.ErrorMessage,
				"timeout": config.Timeout.String(),
			})
		}
	}
}
