package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fastlink/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound 活跃表中不存在该短码
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCode 违反活跃表短码唯一约束
	ErrDuplicateCode = errors.New("duplicate short code")
)

// Store 活跃映射与归档映射的权威存储
type Store struct {
	db *gorm.DB
}

// New 创建存储层
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate 创建活跃表和归档表
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&model.URLMapping{}, &model.ArchivedMapping{})
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Create 写入新映射; 短码冲突返回 ErrDuplicateCode
func (s *Store) Create(ctx context.Context, m *model.URLMapping) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate(err)
	}
	return nil
}

// FindByCode 按短码查询活跃映射
func (s *Store) FindByCode(ctx context.Context, code string) (*model.URLMapping, error) {
	var m model.URLMapping
	if err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// FindReusable 查找同一调用方已创建的相同 URL; owner 为空时只匹配匿名映射
func (s *Store) FindReusable(ctx context.Context, originalURL, owner string, now time.Time) (*model.URLMapping, error) {
	q := s.db.WithContext(ctx).
		Where("original_url = ?", originalURL).
		Where("(expires_at IS NULL OR expires_at >= ?)", now)
	if owner == "" {
		q = q.Where("created_by IS NULL")
	} else {
		q = q.Where("created_by = ?", owner)
	}

	var m model.URLMapping
	if err := q.Order("created_at DESC").First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ExtendExpiry 只向后推迟过期时间, 固定过期的映射不受影响
func (s *Store) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.URLMapping{}).
		Where("id = ? AND fixed_expiration = ?", id, false).
		Where("(expires_at IS NULL OR expires_at < ?)", expiresAt).
		Update("expires_at", expiresAt).Error
	return translate(err)
}

// RecordUsage 增加访问次数并记录访问时间; 非固定过期的映射将过期时间顺延到 now+window
// window <= 0 时不修改过期时间。返回更新后的记录。
func (s *Store) RecordUsage(ctx context.Context, code string, now time.Time, window time.Duration) (*model.URLMapping, error) {
	var updated model.URLMapping
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.URLMapping
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("short_code = ?", code).First(&m).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"hit_count":    gorm.Expr("hit_count + ?", 1),
			"last_used_at": now,
		}
		if !m.FixedExpiration && window > 0 {
			next := now.Add(window)
			if m.ExpiresAt == nil || m.ExpiresAt.Before(next) {
				updates["expires_at"] = next
			}
		}
		if err := tx.Model(&model.URLMapping{}).Where("id = ?", m.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", m.ID).First(&updated).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &updated, nil
}

// UpdateURL 修改原始 URL
// MySQL 在值未变化时 RowsAffected 为 0, 因此这里不据此判断记录是否存在
func (s *Store) UpdateURL(ctx context.Context, id, originalURL string) error {
	err := s.db.WithContext(ctx).Model(&model.URLMapping{}).
		Where("id = ?", id).Update("original_url", originalURL).Error
	return translate(err)
}

// ReplaceCode 为映射更换短码并同时修改原始 URL; 新短码冲突返回 ErrDuplicateCode
func (s *Store) ReplaceCode(ctx context.Context, id, newCode, originalURL string) error {
	res := s.db.WithContext(ctx).Model(&model.URLMapping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"short_code": newCode, "original_url": originalURL})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive 在同一事务中把映射写入归档表并从活跃表删除
func (s *Store) Archive(ctx context.Context, code string, now time.Time) (*model.ArchivedMapping, error) {
	var archived model.ArchivedMapping
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.URLMapping
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("short_code = ?", code).First(&m).Error; err != nil {
			return err
		}
		archived = m.Archive(now)
		return moveToArchive(tx, &archived)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &archived, nil
}

// MigrateExpired 把所有 expires_at < now 的映射迁移到归档表, 整批在一个事务内完成
// 返回迁移的短码, 没有候选时返回空切片
func (s *Store) MigrateExpired(ctx context.Context, now time.Time) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []model.URLMapping
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Find(&expired).Error; err != nil {
			return err
		}

		codes = make([]string, 0, len(expired))
		for i := range expired {
			archived := expired[i].Archive(now)
			if err := moveToArchive(tx, &archived); err != nil {
				return err
			}
			codes = append(codes, archived.ShortCode)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return codes, nil
}

// moveToArchive 写入归档记录后删除活跃记录; 同一 id 再次归档时覆盖旧的归档记录
func moveToArchive(tx *gorm.DB, archived *model.ArchivedMapping) error {
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(archived).Error; err != nil {
		return err
	}
	res := tx.Where("id = ?", archived.ID).Delete(&model.URLMapping{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActive 调用方的活跃映射, 按创建时间倒序
func (s *Store) ListActive(ctx context.Context, owner string) ([]model.URLMapping, error) {
	var list []model.URLMapping
	err := s.db.WithContext(ctx).Where("created_by = ?", owner).
		Order("created_at DESC").Find(&list).Error
	return list, translate(err)
}

// ListArchived 调用方的归档映射, 按创建时间倒序
func (s *Store) ListArchived(ctx context.Context, owner string) ([]model.ArchivedMapping, error) {
	var list []model.ArchivedMapping
	err := s.db.WithContext(ctx).Where("created_by = ?", owner).
		Order("created_at DESC").Find(&list).Error
	return list, translate(err)
}

// SearchByURL 按原始 URL 精确查找活跃映射
func (s *Store) SearchByURL(ctx context.Context, originalURL string) ([]model.URLMapping, error) {
	var list []model.URLMapping
	err := s.db.WithContext(ctx).Where("original_url = ?", originalURL).
		Order("created_at DESC").Find(&list).Error
	return list, translate(err)
}

// EachActive 分批遍历所有未过期的活跃映射, 用于启动时预热缓存
func (s *Store) EachActive(ctx context.Context, now time.Time, batchSize int, fn func([]model.URLMapping) error) error {
	var batch []model.URLMapping
	res := s.db.WithContext(ctx).
		Where("(expires_at IS NULL OR expires_at >= ?)", now).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return translate(res.Error)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateCode
	default:
		return fmt.Errorf("数据库操作失败: %w", err)
	}
}
