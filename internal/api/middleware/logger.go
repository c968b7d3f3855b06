package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"resumeforge/internal/logging"
)

const slogLoggerKey = "slogLogger"

// SlogLoggerMiddleware 将 slog 集成到 Gin，并注入 Correlation ID。
// 请求级 logger 同时放进 request context，供 service 层取用。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := GetCorrelationID(c)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestLogger := logger.With(
			slog.String("correlation_id", correlationID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		)
		c.Set(slogLoggerKey, requestLogger)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), requestLogger))

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if path == "/health" {
			level = slog.LevelDebug
		}
		LoggerFromContext(c).Log(c.Request.Context(), level, "request completed",
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// LoggerFromContext 返回上下文中的 slog.Logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if value, ok := c.Get(slogLoggerKey); ok {
		if logger, ok := value.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
