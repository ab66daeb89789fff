// Package usage 异步记录短链接访问 (访问次数、最近访问时间、过期顺延)
//
// 任务至多执行一次, 队列满或已停止时直接丢弃; 同一短码的多次访问之间不保证顺序。
package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"fastlink/internal/metrics"

	"go.uber.org/zap"
)

// Recorder 执行一次访问记录
type Recorder interface {
	Record(ctx context.Context, code string) error
}

// Dispatcher 提交访问记录任务, 不阻塞调用方
type Dispatcher interface {
	Dispatch(code string)
}

// Pool 进程内的访问记录工作池
type Pool struct {
	recorder Recorder
	jobs     chan string
	workers  int
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPool 创建工作池
func NewPool(recorder Recorder, logger *zap.SugaredLogger, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		recorder: recorder,
		jobs:     make(chan string, queueSize),
		workers:  workers,
		timeout:  5 * time.Second,
		logger:   logger.Named("usage"),
	}
}

// Start 启动工作协程
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.logger.Infof("访问记录工作池已启动, 共 %d 个 worker", p.workers)
}

// Dispatch 非阻塞提交; 队列已满或已停止时丢弃任务
func (p *Pool) Dispatch(code string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.UsageJobs.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case p.jobs <- code:
	default:
		metrics.UsageJobs.WithLabelValues("dropped").Inc()
		p.logger.Warnf("访问记录队列已满, 丢弃短码 %s 的访问记录", code)
	}
}

// Stop 停止接收新任务, 等待队列中已有任务处理完毕或 ctx 超时
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	started := p.started
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
		p.logger.Info("访问记录工作池已停止")
		return nil
	case <-ctx.Done():
		p.logger.Warn("等待访问记录任务完成超时")
		return ctx.Err()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for code := range p.jobs {
		p.record(code)
	}
}

func (p *Pool) record(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.recorder.Record(ctx, code); err != nil {
		metrics.UsageJobs.WithLabelValues("failed").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warnf("记录短码 %s 访问超时", code)
			return
		}
		p.logger.Errorf("记录短码 %s 访问失败: %v", code, err)
		return
	}
	metrics.UsageJobs.WithLabelValues("recorded").Inc()
}
