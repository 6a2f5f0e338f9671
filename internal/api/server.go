package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"taskhub/internal/api/auth"
	"taskhub/internal/api/middleware"
	"taskhub/internal/config"
	"taskhub/internal/pkg/notify"
	"taskhub/internal/pkg/queue"
	"taskhub/internal/pkg/ratelimit"
	"taskhub/internal/security"
	"taskhub/internal/service"
	"taskhub/internal/store/gormstore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库存储、可选的 Redis 客户端、令牌服务以及 Gin 路由引擎。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *gormstore.Store
	rdb     *redis.Client
	router  *gin.Engine
	tokens  *security.TokenService
	limiter *ratelimit.Limiter
	jobs    *queue.Pool
	auth    *auth.Handler
	tasks   *service.TaskService

	closeOnce sync.Once
	closeErr  error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时），用于凭证接口限流
// 3. 构建令牌服务、认证服务与任务服务
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 已通过 Validate 的配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tokens, err := security.NewTokenService([]byte(cfg.Security.JWTSecret), cfg.Security.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	st, err := gormstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	var limiter *ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = st.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		limiter = ratelimit.NewRedisRateLimiter(rdb, logger, "", cfg.Security.LoginRateLimit, cfg.Security.LoginRateBurst)
	} else {
		logger.Warn("redis not configured; credential rate limiting disabled")
	}

	emailNotifier := notify.NewEmailNotifier(&cfg.Email, logger)
	var notifier notify.Notifier = notify.Nop{}
	if emailNotifier.Configured() {
		notifier = emailNotifier
	}

	// 后台任务池不随请求 ctx 取消，由 Close 负责关闭
	jobs := queue.NewPool(logger, 2, 100, 30*time.Second)
	jobs.Start(context.Background())

	authSvc := service.NewAuthService(st, security.NewBcryptHasher(), tokens, notifier, logger).WithJobs(jobs)

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// 限流按客户端 IP 分桶；只有受信代理的 X-Forwarded-For 才被采用
	if err := r.SetTrustedProxies(cfg.App.TrustedProxies); err != nil {
		_ = jobs.Shutdown(context.Background())
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = st.Close()
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		rdb:     rdb,
		router:  r,
		tokens:  tokens,
		limiter: limiter,
		jobs:    jobs,
		auth:    auth.NewHandler(authSvc, logger),
		tasks:   service.NewTaskService(st, st, logger),
	}
	s.registerRoutes()
	return s, nil
}

// Run 启动 HTTP 服务器，阻塞到 ctx 取消后优雅关闭。
//
// 关闭顺序：停止接收新请求（等待 shutdown_timeout），然后调用 Close 释放资源。
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.App.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", slog.String("addr", s.cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down api server...")
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	timeout := s.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	if err := s.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close resources: %w", err)
	}
	return runErr
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 等待后台任务结束，然后关闭数据库与缓存连接。重复调用返回首次结果。
func (s *Server) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *Server) close() error {
	var firstErr error
	if s.jobs != nil {
		timeout := s.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := s.jobs.Shutdown(ctx)
		cancel()
		if err != nil && !errors.Is(err, queue.ErrClosed) {
			firstErr = err
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	credentials := s.router.Group("/auth")
	credentials.POST("/register", middleware.RateLimit(s.limiter, s.logger), s.auth.Register)
	credentials.POST("/login", middleware.RateLimit(s.limiter, s.logger), s.auth.Login)

	guard := middleware.AuthGuard(s.tokens, s.store, s.logger)
	credentials.GET("/me", guard, s.auth.Me)

	authed := s.router.Group("/")
	authed.Use(guard)
	authed.GET("/tasks", s.withUser(s.handleListTasks))
	authed.POST("/tasks", s.withUser(s.handleCreateTask))
	authed.GET("/tasks/:id", s.withUser(s.handleGetTask))
	authed.PUT("/tasks/:id", s.withUser(s.handleUpdateTask))
	authed.DELETE("/tasks/:id", s.withUser(s.handleDeleteTask))
	authed.GET("/tasks/:id/subtasks", s.withUser(s.handleListSubtasks))
	authed.POST("/tasks/:id/subtasks", s.withUser(s.handleCreateSubtask))
	authed.GET("/subtasks/:id", s.withUser(s.handleGetSubtask))
	authed.PUT("/subtasks/:id", s.withUser(s.handleUpdateSubtask))
	authed.DELETE("/subtasks/:id", s.withUser(s.handleDeleteSubtask))
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
