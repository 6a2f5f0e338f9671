// Package queue 提供进程内的后台任务池，用于注册后的欢迎邮件等不影响请求结果的工作。
package queue

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"taskhub/internal/pkg/metrics"
)

// ErrClosed 表示任务池已关闭。
var ErrClosed = errors.New("queue closed")

// Job 表示一个后台任务。ctx 带有单任务超时。
type Job func(ctx context.Context) error

type namedJob struct {
	name string
	run  Job
}

// Pool 是固定 worker 数、有界缓冲的后台任务池。缓冲满时丢弃新任务。
type Pool struct {
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration
	jobs       chan namedJob

	wg      sync.WaitGroup
	closed  atomic.Bool
	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc
}

// NewPool 创建任务池。
//
// 参数:
//   - logger: 日志记录器
//   - workers: worker 数量（至少为 1）
//   - capacity: 缓冲容量（至少为 1）
//   - jobTimeout: 单个任务的超时，<=0 表示 30s
func NewPool(logger *slog.Logger, workers, capacity int, jobTimeout time.Duration) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &Pool{
		logger:     logger,
		workers:    workers,
		jobTimeout: jobTimeout,
		jobs:       make(chan namedJob, capacity),
	}
}

// Start 启动 worker。重复调用无效果。
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed.Load() {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.execute(ctx, job, id)
		}
	}
}

// execute 执行单个任务，panic 会被恢复并记录。
func (p *Pool) execute(ctx context.Context, job namedJob, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BackgroundJobsTotal.WithLabelValues(job.name, "panic").Inc()
			p.logger.Error("background job panic recovered",
				slog.String("job", job.name),
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	if err := job.run(jobCtx); err != nil {
		metrics.BackgroundJobsTotal.WithLabelValues(job.name, "failed").Inc()
		p.logger.Warn("background job failed",
			slog.String("job", job.name),
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
		return
	}
	metrics.BackgroundJobsTotal.WithLabelValues(job.name, "succeeded").Inc()
}

// Enqueue 非阻塞入队。池已关闭或缓冲已满时返回 false。
func (p *Pool) Enqueue(name string, job Job) bool {
	if job == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		metrics.BackgroundJobsTotal.WithLabelValues(name, "rejected").Inc()
		return false
	}
	select {
	case p.jobs <- namedJob{name: name, run: job}:
		return true
	default:
		metrics.BackgroundJobsTotal.WithLabelValues(name, "dropped").Inc()
		p.logger.Warn("background queue full, drop job",
			slog.String("job", name),
			slog.Int("capacity", cap(p.jobs)))
		return false
	}
}

// Shutdown 拒绝新任务，等待已入队任务执行完毕；ctx 到期时取消剩余任务。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return ErrClosed
	}
	close(p.jobs)
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
