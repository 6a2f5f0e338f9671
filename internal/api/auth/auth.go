package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/api/response"
	"taskhub/internal/pkg/apperr"
	"taskhub/internal/pkg/requestctx"
	"taskhub/internal/service"
)

// Handler 提供注册、登录与当前用户接口。
type Handler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *service.AuthService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// 字段校验交给 AuthService，这里只负责解析 JSON。
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 创建新用户并返回令牌。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, apperr.Validation("Invalid request body"))
		return
	}
	result, err := h.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, result)
}

// Login 校验用户并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, apperr.Validation("Invalid request body"))
		return
	}
	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

// Me 返回当前登录用户。必须挂在 AuthGuard 之后。
func (h *Handler) Me(c *gin.Context) {
	user, ok := requestctx.UserFromContext(c.Request.Context())
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	response.OK(c, h.svc.Profile(user))
}
