package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/pkg/metrics"
)

// RequestLogger logs HTTP request/response metadata and records request metrics.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		path := c.Request.URL.Path
		method := c.Request.Method
		clientIP := c.ClientIP()

		// 未匹配路由统一归为 "unmatched"，避免路径基数爆炸
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(latency.Seconds())

		if logger != nil {
			logger.Info("http request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.String("client_ip", clientIP),
				slog.String("latency", latency.String()),
				slog.String("request_id", GetRequestID(c)),
			)
		}
	}
}
