package notify

import (
	"context"

	"taskhub/internal/model"
)

// Notifier 定义用户通知接口。
type Notifier interface {
	// Welcome 在注册成功后通知用户。
	//
	// 参数:
	//   ctx: 上下文
	//   user: 新注册用户的公开视图
	Welcome(ctx context.Context, user model.PublicUser) error
}

// Nop 是不发送任何通知的实现，用于未配置 SMTP 的环境和测试。
type Nop struct{}

// Welcome 直接返回 nil。
func (Nop) Welcome(context.Context, model.PublicUser) error { return nil }
