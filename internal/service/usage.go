package service

import (
	"context"
	"errors"
	"time"

	"fastlink/internal/cache"
	"fastlink/internal/metrics"
	"fastlink/internal/model"
	"fastlink/internal/store"

	"go.uber.org/zap"
)

// usageStore 访问记录需要的持久化操作
type usageStore interface {
	RecordUsage(ctx context.Context, code string, now time.Time, window time.Duration) (*model.URLMapping, error)
}

// UsageRecorder 实现 usage.Recorder: 更新访问统计并同步缓存 TTL
type UsageRecorder struct {
	store    usageStore
	cache    cache.Cache
	settings Settings
	logger   *zap.SugaredLogger
}

// NewUsageRecorder 创建访问记录器, settings 与 Resolver 共用
func NewUsageRecorder(s usageStore, c cache.Cache, settings Settings, logger *zap.SugaredLogger) *UsageRecorder {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &UsageRecorder{
		store:    s,
		cache:    c,
		settings: settings,
		logger:   logger.Named("usage_recorder"),
	}
}

// Record 访问次数加一, 记录访问时间并顺延过期时间
// 映射已被删除或归档时返回 ErrNotFound
func (u *UsageRecorder) Record(ctx context.Context, code string) error {
	now := u.settings.Now().UTC()
	m, err := u.store.RecordUsage(ctx, code, now, u.settings.ExpiryWindow)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return transient(err)
	}

	if m.FixedExpiration || u.settings.ExpiryWindow <= 0 {
		return nil
	}
	ttl, ok := cacheTTL(m, now, u.settings.CacheTTL)
	if !ok {
		return nil
	}
	if err := u.cache.Set(ctx, m.ShortCode, m.OriginalURL, ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		u.logger.Warnf("刷新短码 %s 的缓存 TTL 失败: %v", code, err)
	}
	return nil
}
