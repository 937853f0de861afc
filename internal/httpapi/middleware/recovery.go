package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vssbroker/internal/shared/logger"
)

// Recovery returns a Gin middleware that recovers from panics in HTTP
// handlers, grounded on the teacher's middleware.Recovery (trimmed of
// the broken-connection special case, which only applies to the
// teacher's tunnel proxying and has no analogue here).
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered in http handler",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Any("error", recovered),
			zap.String("stack", string(debug.Stack())))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
