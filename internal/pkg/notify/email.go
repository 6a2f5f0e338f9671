package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"taskhub/internal/config"
	"taskhub/internal/model"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送邮件通知。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	dial   func(m *gomail.Message) error
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
	n.dial = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

// Configured 判断 SMTP 配置是否完整。
func (n *EmailNotifier) Configured() bool {
	return n != nil && n.cfg != nil && n.cfg.SMTPHost != "" && n.cfg.SMTPUser != "" && n.cfg.FromEmail != ""
}

// Welcome 发送注册欢迎邮件。配置缺失时跳过并返回 nil。
func (n *EmailNotifier) Welcome(ctx context.Context, user model.PublicUser) error {
	if !n.Configured() {
		if n != nil && n.logger != nil {
			n.logger.Warn("email config missing, skip welcome mail")
		}
		return nil
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", "[taskhub] Welcome")
	m.SetBody("text/html", buildWelcomeBody(user.Name))

	if err := n.dial(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if n.logger != nil {
		n.logger.Info("welcome email sent", slog.Uint64("user_id", uint64(user.ID)))
	}
	return nil
}

func buildWelcomeBody(name string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to taskhub, %s</h2>
    <p>Your account is ready. Sign in to start organising your tasks.</p>
  </div>
</body>
</html>`, html.EscapeString(name))
}
