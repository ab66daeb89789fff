package model

import (
	"time"
)

// URLMapping 活跃的短链接映射
type URLMapping struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	ShortCode       string     `gorm:"size:32;uniqueIndex;not null" json:"short_code"`
	OriginalURL     string     `gorm:"type:text;not null" json:"original_url"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at"`
	HitCount        int64      `gorm:"not null;default:0" json:"hit_count"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	FixedExpiration bool       `gorm:"not null;default:false" json:"fixed_expiration"`
	CreatedBy       *string    `gorm:"size:64;index" json:"created_by,omitempty"`
}

// TableName 指定表名
func (URLMapping) TableName() string {
	return "url_mappings"
}

// IsExpired expires_at 为空表示永不过期
func (m *URLMapping) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// OwnedBy 匿名链接不属于任何调用方
func (m *URLMapping) OwnedBy(owner string) bool {
	return owner != "" && m.CreatedBy != nil && *m.CreatedBy == owner
}

// Archive 复制全部字段生成归档记录
func (m *URLMapping) Archive(movedAt time.Time) ArchivedMapping {
	return ArchivedMapping{
		ID:              m.ID,
		ShortCode:       m.ShortCode,
		OriginalURL:     m.OriginalURL,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		HitCount:        m.HitCount,
		LastUsedAt:      m.LastUsedAt,
		FixedExpiration: m.FixedExpiration,
		CreatedBy:       m.CreatedBy,
		MovedAt:         movedAt,
	}
}

// ArchivedMapping 过期或被删除后的历史记录, 短码不要求唯一
type ArchivedMapping struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	ShortCode       string     `gorm:"size:32;index;not null" json:"short_code"`
	OriginalURL     string     `gorm:"type:text;not null" json:"original_url"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	HitCount        int64      `gorm:"not null;default:0" json:"hit_count"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	FixedExpiration bool       `gorm:"not null;default:false" json:"fixed_expiration"`
	CreatedBy       *string    `gorm:"size:64;index" json:"created_by,omitempty"`
	MovedAt         time.Time  `gorm:"not null;index" json:"moved_at"`
}

// TableName 指定表名
func (ArchivedMapping) TableName() string {
	return "archived_mappings"
}
