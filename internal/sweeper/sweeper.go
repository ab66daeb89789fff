// Package sweeper 定期把过期的映射迁移到归档表
package sweeper

import (
	"context"
	"time"

	"fastlink/internal/cache"
	"fastlink/internal/metrics"

	"go.uber.org/zap"
)

// Migrator 在一个事务内迁移所有过期映射
type Migrator interface {
	MigrateExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Sweeper 过期清理任务
type Sweeper struct {
	store    Migrator
	cache    cache.Cache
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
}

// Option 清理任务可选配置
type Option func(*Sweeper)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRunTimeout 设置单次清理的最长时间
func WithRunTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New 创建清理任务, interval 为两次清理之间的间隔
func New(store Migrator, c cache.Cache, interval time.Duration, logger *zap.SugaredLogger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		cache:    c,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
		logger:   logger.Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce 迁移所有过期映射, 提交后删除对应的缓存条目
// 迁移失败时事务回滚, 不修改缓存
func (s *Sweeper) RunOnce(ctx context.Context) ([]string, error) {
	codes, err := s.store.MigrateExpired(ctx, s.now().UTC())
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SweepRuns.WithLabelValues("ok").Inc()
	if len(codes) == 0 {
		return codes, nil
	}
	metrics.SweepMigrated.Add(float64(len(codes)))

	if _, err := s.cache.Delete(ctx, codes...); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		s.logger.Errorf("已归档 %d 个短码, 但删除缓存失败: %v", len(codes), err)
	}
	s.logger.Infof("已归档 %d 个过期短码", len(codes))
	return codes, nil
}

// Run 按间隔执行清理直到 ctx 取消; 单次失败只记录日志
// ctx 取消时正在进行的清理会继续完成
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infof("过期清理已启动, 间隔 %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("过期清理已停止")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Errorf("过期清理失败: %v", err)
	}
}
