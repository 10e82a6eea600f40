package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"example.com/safegear/services/ppe/internal/metrics"
)

// requestLogger logs each request with its latency and outcome
func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := c.Writer.Status()
		duration := time.Since(start)
		metrics.GetCollector().RecordHTTPRequest(path, status < 400, duration)

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   status,
			"duration": duration.String(),
			"client":   c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request handled")
		}
	}
}

// recovery converts panics into 500 responses instead of dropping the
// connection
func recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Handler panicked")
				metrics.GetCollector().RecordError(metrics.ErrorTypeInternal)
				c.AbortWithStatusJSON(500, ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "an unexpected error occurred",
				})
			}
		}()
		c.Next()
	}
}
