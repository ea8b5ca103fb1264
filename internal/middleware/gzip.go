package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

const (
	DefaultCompression = gzip.DefaultCompression
	BestSpeed          = gzip.BestSpeed
	BestCompression    = gzip.BestCompression
)

var gzipWriterPool = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(io.Discard) },
}

type gzipWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) { return g.writer.Write(data) }

func (g *gzipWriter) WriteString(s string) (int, error) { return g.writer.Write([]byte(s)) }

func shouldCompress(r *gin.Context) bool {
	if !strings.Contains(r.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	if r.GetHeader("Upgrade") == "websocket" {
		return false
	}
	return true
}

// GzipWithExclusions compresses responses at the given level, skipping
// any path prefix in excludePaths. /ws and /bunchy must always be
// excluded: gzip-wrapping the hijacked connection used for a WebSocket
// upgrade corrupts the handshake.
func GzipWithExclusions(level int, excludePaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range excludePaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}
		if !shouldCompress(c) {
			c.Next()
			return
		}

		gz := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(gz)
		gz.Reset(c.Writer)
		defer gz.Close()

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, writer: gz}

		c.Next()
		gz.Flush()
	}
}
