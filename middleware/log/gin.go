package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TraceHeader carries the trace ID in and out of HTTP requests.
const TraceHeader = "X-Trace-ID"

// GinMiddleware assigns a trace ID to each request (reusing an incoming
// X-Trace-ID), stores it in the request context and logs the request once it
// completes.
func GinMiddleware(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := WithTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, GetTraceID(ctx))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.ErrorContext(ctx, "request failed", fields...)
		case status >= 400:
			l.WarnContext(ctx, "request rejected", fields...)
		default:
			l.InfoContext(ctx, "request handled", fields...)
		}
	}
}
