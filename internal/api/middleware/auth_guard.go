package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskhub/internal/api/response"
	"taskhub/internal/model"
	"taskhub/internal/pkg/metrics"
	"taskhub/internal/pkg/requestctx"
	"taskhub/internal/security"
	"taskhub/internal/store"
)

const bearerPrefix = "Bearer "

// TokenVerifier 校验令牌并返回其中的身份。
type TokenVerifier interface {
	Verify(token string) (security.Claims, error)
}

// UserFinder 按 ID 加载用户。
type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// AuthGuard 校验 Bearer 令牌，并把当前用户写入请求 context。
// 任意校验失败都返回 401 "Unauthorized"。
func AuthGuard(tokens TokenVerifier, users UserFinder, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, "missing_header")
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			reject(c, "malformed_header")
			return
		}
		raw := header[len(bearerPrefix):]
		if raw == "" || strings.ContainsAny(raw, " \t") {
			reject(c, "malformed_header")
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			reject(c, "invalid_token")
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				reject(c, "unknown_user")
				return
			}
			if logger != nil {
				logger.Error("auth guard load user failed",
					slog.Uint64("user_id", uint64(claims.UserID)),
					slog.String("error", err.Error()),
				)
			}
			response.AbortFail(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := requestctx.WithUser(c.Request.Context(), user.Public())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func reject(c *gin.Context, reason string) {
	metrics.TokenRejectedTotal.WithLabelValues(reason).Inc()
	response.AbortFail(c, http.StatusUnauthorized, "Unauthorized")
}
