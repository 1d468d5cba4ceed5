package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-booking/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are not logged:
// booking forms carry phone numbers.
func Logger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		zl := l.Zerolog().With().
			Str("request_id", c.GetString(ContextRequestID)).
			Str("visitor_id", c.GetString(ContextVisitorID)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("user_agent", c.Request.UserAgent()).
			Logger()

		switch {
		case statusCode >= 500:
			zl.Error().Msg("Server error")
		case statusCode >= 400:
			zl.Warn().Msg("Client error")
		default:
			zl.Info().Msg("Request processed")
		}
	}
}
