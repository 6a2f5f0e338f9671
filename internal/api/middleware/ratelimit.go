package middleware

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskhub/internal/api/response"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/pkg/ratelimit"
)

// RateLimit 按客户端 IP 对凭证接口限流。limiter 为 nil 或未启用时直接放行；
// Redis 出错时放行并记录日志。
func RateLimit(limiter *ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || !limiter.Enabled() {
			c.Next()
			return
		}

		route := c.FullPath()
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), route+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("route", route), slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(route).Inc()
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			}
			response.Error(c, logger, apperr.New(apperr.KindRateLimited, "Too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}
