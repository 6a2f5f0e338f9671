// Package response 统一 HTTP 响应格式：{success, data, count, message}。
package response

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/pkg/apperr"
)

// Envelope 是所有 JSON 响应的外层结构。
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// List 返回列表，并带上 count。
func List[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	c.JSON(http.StatusOK, Envelope{Success: true, Data: items, Count: &n})
}

// Fail 以指定状态码返回失败信息。
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Success: false, Message: message})
}

// AbortFail 与 Fail 相同，但会中止后续 handler。
func AbortFail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message})
}

// Error 把 err 映射为状态码与对外消息。内部错误只记录日志，不向客户端暴露细节。
func Error(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal && logger != nil {
		logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	Fail(c, kind.HTTPStatus(), apperr.PublicMessage(err))
}
