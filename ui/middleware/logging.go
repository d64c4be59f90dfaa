package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
)

// RequestLogger logs one line per request at a level matching the status
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if model := c.Param("model"); model != "" {
			fields = append(fields, zap.String("model", model))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Debug("request served", fields...)
		}
	}
}

// Recovery turns panics into 500 responses and logs them
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic in handler", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		appErr := errors.InternalError("internal error")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": appErr.Message, "code": appErr.Code})
	})
}
