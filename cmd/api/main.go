package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"taskhub/internal/api"
	"taskhub/internal/config"
	"taskhub/internal/pkg/logger"
)

// main 是 API 服务的入口函数。
//
// 它负责：
// 1. 加载并校验配置（缺少 JWT 密钥时直接退出）
// 2. 初始化日志
// 3. 初始化并启动 API 服务器，收到信号后优雅关闭
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	// Security 的 MarshalJSON 不输出密钥
	appLogger.Info("config loaded",
		slog.Any("app", cfg.App),
		slog.Any("security", cfg.Security),
		slog.String("db_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := api.NewServer(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("init server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		appLogger.Error("server run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appLogger.Info("api server stopped")
}
