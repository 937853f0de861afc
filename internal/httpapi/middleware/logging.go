package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vssbroker/internal/shared/logger"
)

// Logging returns a Gin middleware for structured HTTP access logging,
// grounded on the teacher's middleware.Logger.
func Logging() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := []zap.Field{
			zap.String("method", param.Method),
			zap.String("path", param.Path),
			zap.Int("status", param.StatusCode),
			zap.Duration("latency", param.Latency),
			zap.String("client_ip", param.ClientIP),
		}
		if param.ErrorMessage != "" {
			fields = append(fields, zap.String("error", param.ErrorMessage))
		}

		switch {
		case param.StatusCode >= 500:
			logger.Error("http request completed", fields...)
		case param.StatusCode >= 400:
			logger.Warn("http request completed", fields...)
		default:
			logger.Info("http request completed", fields...)
		}
		return ""
	})
}
