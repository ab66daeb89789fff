package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"fastlink/internal/cache"
	"fastlink/internal/metrics"
	"fastlink/internal/model"
	"fastlink/internal/shortcode"
	"fastlink/internal/store"
	"fastlink/internal/usage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Repository 解析服务依赖的持久化操作
type Repository interface {
	mappingFinder
	usageStore
	Create(ctx context.Context, m *model.URLMapping) error
	FindReusable(ctx context.Context, originalURL, owner string, now time.Time) (*model.URLMapping, error)
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error
	UpdateURL(ctx context.Context, id, originalURL string) error
	ReplaceCode(ctx context.Context, id, newCode, originalURL string) error
	Archive(ctx context.Context, code string, now time.Time) (*model.ArchivedMapping, error)
	ListActive(ctx context.Context, owner string) ([]model.URLMapping, error)
	ListArchived(ctx context.Context, owner string) ([]model.ArchivedMapping, error)
	SearchByURL(ctx context.Context, originalURL string) ([]model.URLMapping, error)
	EachActive(ctx context.Context, now time.Time, batchSize int, fn func([]model.URLMapping) error) error
}

// loadTimeout 缓存未命中时单次回源查询的最长时间
const loadTimeout = 5 * time.Second

// Settings 解析服务的策略参数
type Settings struct {
	// ExpiryWindow 新建链接的有效期, 也是每次访问后的顺延时长; 0 表示不过期
	ExpiryWindow time.Duration
	// CacheTTL 缓存条目的最长存活时间, 实际 TTL 不超过映射剩余有效期; 0 表示只受过期时间约束
	CacheTTL time.Duration
	// Now 可替换的时钟, 默认 time.Now
	Now func() time.Time
}

// Resolver 负责短链接的创建、解析、修改与删除
type Resolver struct {
	repo      Repository
	cache     cache.Cache
	generator *shortcode.Generator
	usage     usage.Dispatcher
	guard     *Guard
	recorder  *UsageRecorder
	settings  Settings
	logger    *zap.SugaredLogger
	loads     singleflight.Group
}

// NewResolver 创建解析服务
func NewResolver(
	repo Repository,
	c cache.Cache,
	generator *shortcode.Generator,
	dispatcher usage.Dispatcher,
	settings Settings,
	logger *zap.SugaredLogger,
) *Resolver {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Resolver{
		repo:      repo,
		cache:     c,
		generator: generator,
		usage:     dispatcher,
		guard:     NewGuard(repo),
		recorder:  NewUsageRecorder(repo, c, settings, logger),
		settings:  settings,
		logger:    logger.Named("resolver"),
	}
}

func (r *Resolver) now() time.Time {
	return r.settings.Now().UTC()
}

// Create 为 URL 生成短码; 同一调用方 (匿名调用方之间) 已有未过期的相同 URL 时顺延其有效期后直接返回
func (r *Resolver) Create(ctx context.Context, originalURL, owner string) (*model.URLMapping, error) {
	if err := validateURL(originalURL); err != nil {
		return nil, err
	}
	now := r.now()

	existing, err := r.repo.FindReusable(ctx, originalURL, owner, now)
	switch {
	case err == nil:
		if err := r.extend(ctx, existing, now); err != nil {
			return nil, err
		}
		r.populate(ctx, existing, now)
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, transient(err)
	}

	m := &model.URLMapping{
		ID:          uuid.NewString(),
		OriginalURL: originalURL,
		CreatedAt:   now,
		CreatedBy:   ownerRef(owner),
	}
	if r.settings.ExpiryWindow > 0 {
		expiresAt := now.Add(r.settings.ExpiryWindow)
		m.ExpiresAt = &expiresAt
	}

	if err := r.insertGenerated(ctx, m); err != nil {
		return nil, err
	}
	r.populate(ctx, m, now)
	r.logger.Infof("创建短链接 %s -> %s", m.ShortCode, m.OriginalURL)
	return m, nil
}

// CustomRequest 自定义短码的创建参数
type CustomRequest struct {
	OriginalURL     string
	ShortCode       string
	ExpiresAt       time.Time
	FixedExpiration bool
	Owner           string
}

// CreateCustom 使用调用方指定的短码和过期时间创建映射
func (r *Resolver) CreateCustom(ctx context.Context, req CustomRequest) (*model.URLMapping, error) {
	if err := validateURL(req.OriginalURL); err != nil {
		return nil, err
	}
	if !shortcode.Valid(req.ShortCode) {
		return nil, ErrInvalidCode
	}
	now := r.now()
	if !req.ExpiresAt.After(now) {
		return nil, ErrInvalidExpiration
	}

	_, err := r.repo.FindByCode(ctx, req.ShortCode)
	switch {
	case err == nil:
		return nil, ErrCodeAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return nil, transient(err)
	}

	expiresAt := req.ExpiresAt.UTC()
	m := &model.URLMapping{
		ID:              uuid.NewString(),
		ShortCode:       req.ShortCode,
		OriginalURL:     req.OriginalURL,
		CreatedAt:       now,
		ExpiresAt:       &expiresAt,
		FixedExpiration: req.FixedExpiration,
		CreatedBy:       ownerRef(req.Owner),
	}
	if err := r.repo.Create(ctx, m); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			return nil, ErrCodeAlreadyExists
		}
		return nil, transient(err)
	}
	r.populate(ctx, m, now)
	r.logger.Infof("创建自定义短链接 %s -> %s", m.ShortCode, m.OriginalURL)
	return m, nil
}

// Resolve 返回短码对应的原始 URL
// 缓存命中时直接返回, 不访问数据库; 已过期但尚未清理的缓存条目仍可能命中, 最长不超过缓存 TTL
func (r *Resolver) Resolve(ctx context.Context, code string, recordUsage bool) (string, error) {
	target, err := r.cache.Get(ctx, code)
	if err == nil {
		metrics.Resolutions.WithLabelValues("cache", "hit").Inc()
		if recordUsage {
			r.usage.Dispatch(code)
		}
		return target, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		r.logger.Warnf("读取缓存失败, 回退到数据库: %v", err)
	}

	// 同一短码的并发回源共享一次查询, 不受首个调用方取消的影响
	v, err, _ := r.loads.Do(code, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, code)
	})
	if err != nil {
		metrics.Resolutions.WithLabelValues("store", resultLabel(err)).Inc()
		return "", err
	}
	metrics.Resolutions.WithLabelValues("store", "hit").Inc()

	if recordUsage {
		r.usage.Dispatch(code)
	}
	return v.(string), nil
}

// RecordUsage 同步执行一次访问记录, 与后台任务的行为一致
func (r *Resolver) RecordUsage(ctx context.Context, code string) error {
	return r.recorder.Record(ctx, code)
}

// load 缓存未命中时从数据库读取并回填缓存
func (r *Resolver) load(ctx context.Context, code string) (string, error) {
	m, err := r.repo.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", transient(err)
	}

	now := r.now()
	if m.IsExpired(now) {
		return "", ErrExpired
	}
	r.populate(ctx, m, now)
	return m.OriginalURL, nil
}

// UpdateRequest 修改短链接的参数, OriginalURL 为空表示不修改
type UpdateRequest struct {
	OriginalURL string
	Regenerate  bool
}

// Update 修改原始 URL 或重新生成短码, 仅创建者可操作
func (r *Resolver) Update(ctx context.Context, code, caller string, req UpdateRequest) (*model.URLMapping, error) {
	m, err := r.guard.Authorize(ctx, code, caller)
	if err != nil {
		return nil, err
	}

	newURL := m.OriginalURL
	if req.OriginalURL != "" {
		if err := validateURL(req.OriginalURL); err != nil {
			return nil, err
		}
		newURL = req.OriginalURL
	}
	now := r.now()

	if !req.Regenerate {
		if err := r.repo.UpdateURL(ctx, m.ID, newURL); err != nil {
			return nil, transient(err)
		}
		m.OriginalURL = newURL
		if !r.populate(ctx, m, now) {
			r.invalidate(ctx, m.ShortCode)
		}
		return m, nil
	}

	oldCode := m.ShortCode
	m.OriginalURL = newURL
	if err := r.replaceGenerated(ctx, m, oldCode); err != nil {
		return nil, err
	}
	if _, err := r.cache.Delete(ctx, oldCode); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		r.logger.Warnf("删除旧短码 %s 的缓存失败: %v", oldCode, err)
	}
	r.populate(ctx, m, now)
	r.logger.Infof("短码 %s 已重新生成为 %s", oldCode, m.ShortCode)
	return m, nil
}

// Delete 把映射移入归档表并使缓存失效, 仅创建者可操作
// 归档失败时活跃记录与缓存保持不变
func (r *Resolver) Delete(ctx context.Context, code, caller string) (*model.ArchivedMapping, error) {
	if _, err := r.guard.Authorize(ctx, code, caller); err != nil {
		return nil, err
	}

	archived, err := r.repo.Archive(ctx, code, r.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transient(err)
	}

	if _, err := r.cache.Delete(ctx, code); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		r.logger.Errorf("短码 %s 已归档但缓存删除失败: %v", code, err)
	}
	r.logger.Infof("短码 %s 已移入归档", code)
	return archived, nil
}

// Stats 短链接统计信息
type Stats struct {
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	HitCount    int64      `json:"hit_count"`
	LastUsedAt  *time.Time `json:"last_used_at"`
}

// Stats 只读查询活跃映射的统计信息
func (r *Resolver) Stats(ctx context.Context, code string) (*Stats, error) {
	m, err := r.repo.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transient(err)
	}
	return &Stats{
		OriginalURL: m.OriginalURL,
		CreatedAt:   m.CreatedAt,
		HitCount:    m.HitCount,
		LastUsedAt:  m.LastUsedAt,
	}, nil
}

// Listing 列表中的一条映射, 归档映射带有 MovedAt
type Listing struct {
	ShortCode       string     `json:"short_code"`
	OriginalURL     string     `json:"original_url"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	HitCount        int64      `json:"hit_count"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	FixedExpiration bool       `json:"fixed_expiration"`
	MovedAt         *time.Time `json:"moved_at,omitempty"`
}

const (
	ListActive  = "active"
	ListExpired = "expired"
)

// List 返回调用方的活跃或已归档映射, 按创建时间倒序
func (r *Resolver) List(ctx context.Context, owner, kind string) ([]Listing, error) {
	switch strings.ToLower(kind) {
	case "", ListActive:
		list, err := r.repo.ListActive(ctx, owner)
		if err != nil {
			return nil, transient(err)
		}
		out := make([]Listing, 0, len(list))
		for _, m := range list {
			out = append(out, Listing{
				ShortCode: m.ShortCode, OriginalURL: m.OriginalURL, CreatedAt: m.CreatedAt,
				ExpiresAt: m.ExpiresAt, HitCount: m.HitCount, LastUsedAt: m.LastUsedAt,
				FixedExpiration: m.FixedExpiration,
			})
		}
		return out, nil
	case ListExpired:
		list, err := r.repo.ListArchived(ctx, owner)
		if err != nil {
			return nil, transient(err)
		}
		out := make([]Listing, 0, len(list))
		for _, m := range list {
			movedAt := m.MovedAt
			out = append(out, Listing{
				ShortCode: m.ShortCode, OriginalURL: m.OriginalURL, CreatedAt: m.CreatedAt,
				ExpiresAt: m.ExpiresAt, HitCount: m.HitCount, LastUsedAt: m.LastUsedAt,
				FixedExpiration: m.FixedExpiration, MovedAt: &movedAt,
			})
		}
		return out, nil
	default:
		return nil, ErrInvalidListKind
	}
}

// Search 按原始 URL 查找活跃映射
func (r *Resolver) Search(ctx context.Context, originalURL string) ([]model.URLMapping, error) {
	list, err := r.repo.SearchByURL(ctx, originalURL)
	if err != nil {
		return nil, transient(err)
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list, nil
}

// WarmCache 把所有未过期的活跃映射写入缓存, 返回写入数量
func (r *Resolver) WarmCache(ctx context.Context) (int, error) {
	now := r.now()
	count := 0
	err := r.repo.EachActive(ctx, now, 500, func(batch []model.URLMapping) error {
		for i := range batch {
			if r.populate(ctx, &batch[i], now) {
				count++
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return count, transient(err)
	}
	r.logger.Infof("缓存预热完成, 共 %d 条", count)
	return count, nil
}

// insertGenerated 生成短码并写入数据库; 被唯一约束拒绝的短码会被排除后重试
func (r *Resolver) insertGenerated(ctx context.Context, m *model.URLMapping) error {
	var excluded []string
	for attempt := 0; attempt < r.generator.MaxAttempts(); attempt++ {
		code, err := r.generator.Generate(ctx, m.OriginalURL, excluded...)
		if err != nil {
			return r.generationError(err)
		}
		m.ShortCode = code

		err = r.repo.Create(ctx, m)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			r.release(ctx, code)
			return transient(err)
		}
		metrics.CodeCollisions.Inc()
		r.repair(ctx, code)
		excluded = append(excluded, code)
	}
	return ErrGenerationExhausted
}

// replaceGenerated 为已有映射生成新短码, 新短码不会与旧短码相同
func (r *Resolver) replaceGenerated(ctx context.Context, m *model.URLMapping, oldCode string) error {
	excluded := []string{oldCode}
	for attempt := 0; attempt < r.generator.MaxAttempts(); attempt++ {
		code, err := r.generator.Generate(ctx, m.OriginalURL, excluded...)
		if err != nil {
			return r.generationError(err)
		}

		err = r.repo.ReplaceCode(ctx, m.ID, code, m.OriginalURL)
		if err == nil {
			m.ShortCode = code
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			r.release(ctx, code)
			return ErrNotFound
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			r.release(ctx, code)
			return transient(err)
		}
		metrics.CodeCollisions.Inc()
		r.repair(ctx, code)
		excluded = append(excluded, code)
	}
	return ErrGenerationExhausted
}

func (r *Resolver) generationError(err error) error {
	if errors.Is(err, shortcode.ErrExhausted) {
		return ErrGenerationExhausted
	}
	return transient(err)
}

// release 删除写库失败的预占缓存
func (r *Resolver) release(ctx context.Context, code string) {
	if _, err := r.cache.Delete(ctx, code); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		r.logger.Warnf("释放预占短码 %s 失败: %v", code, err)
	}
}

// repair 预占时覆盖了一个缓存中缺失、数据库中已存在的短码, 用数据库中的记录恢复缓存
func (r *Resolver) repair(ctx context.Context, code string) {
	existing, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		r.release(ctx, code)
		return
	}
	r.populate(ctx, existing, r.now())
}

// extend 复用已有映射时顺延有效期, 固定过期或不过期的映射保持不变
func (r *Resolver) extend(ctx context.Context, m *model.URLMapping, now time.Time) error {
	if r.settings.ExpiryWindow <= 0 || m.FixedExpiration {
		return nil
	}
	next := now.Add(r.settings.ExpiryWindow)
	if m.ExpiresAt != nil && !m.ExpiresAt.Before(next) {
		return nil
	}
	if err := r.repo.ExtendExpiry(ctx, m.ID, next); err != nil {
		return transient(err)
	}
	m.ExpiresAt = &next
	return nil
}

// populate 写入缓存, TTL 不超过映射的剩余有效期; 已过期的映射不写入
func (r *Resolver) populate(ctx context.Context, m *model.URLMapping, now time.Time) bool {
	ttl, ok := cacheTTL(m, now, r.settings.CacheTTL)
	if !ok {
		return false
	}
	if err := r.cache.Set(ctx, m.ShortCode, m.OriginalURL, ttl); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		r.logger.Warnf("写入短码 %s 的缓存失败: %v", m.ShortCode, err)
		return false
	}
	return true
}

// invalidate 删除可能已过时的缓存条目, 下次解析回源到数据库
func (r *Resolver) invalidate(ctx context.Context, code string) {
	if _, err := r.cache.Delete(ctx, code); err != nil {
		metrics.CacheErrors.WithLabelValues("delete").Inc()
		r.logger.Errorf("短码 %s 的缓存可能已过时且删除失败: %v", code, err)
	}
}

// cacheTTL 返回缓存条目的 TTL, 0 表示不过期
func cacheTTL(m *model.URLMapping, now time.Time, maxTTL time.Duration) (time.Duration, bool) {
	ttl := maxTTL
	if m.ExpiresAt != nil {
		remaining := m.ExpiresAt.Sub(now)
		if remaining <= 0 {
			return 0, false
		}
		if ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	}
	return ttl, true
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}

func ownerRef(owner string) *string {
	if owner == "" {
		return nil
	}
	return &owner
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
