package httpgin

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
	maxRequestIDLen = 128
)

// RequestIDMiddleware echoes a caller's X-Request-ID or assigns one.
// Oversized ids are replaced so they cannot bloat every log line.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}

		c.Header(headerRequestID, reqID)
		c.Set(ctxRequestID, reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			headerRequestID,
			"Idempotency-Key",
			"If-None-Match",
			"Last-Event-ID",
		},
		ExposeHeaders: []string{
			headerRequestID,
			"ETag",
			"Cache-Control",
			"Retry-After",
			"Idempotency-Key",
		},
		MaxAge: 12 * time.Hour,
	})
}

// LoggingMiddleware writes one line per request under the "http" group:
// info for success, warn for client errors, error for server errors or
// errors attached to the context.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.String("path", c.Request.URL.RequestURI()),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(ctxRequestID)),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500 || len(c.Errors) > 0:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		logger.Log(c.Request.Context(), level, "http", slog.Group("http", attrs...))
	}
}
