package service

import (
	"context"
	"errors"

	"fastlink/internal/model"
	"fastlink/internal/store"
)

type mappingFinder interface {
	FindByCode(ctx context.Context, code string) (*model.URLMapping, error)
}

// Guard 校验调用方是否为短链接的创建者
type Guard struct {
	finder mappingFinder
}

// NewGuard 创建权限校验器
func NewGuard(finder mappingFinder) *Guard {
	return &Guard{finder: finder}
}

// Authorize 返回调用方拥有的活跃映射; 匿名创建的映射不属于任何人
func (g *Guard) Authorize(ctx context.Context, code, caller string) (*model.URLMapping, error) {
	m, err := g.finder.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transient(err)
	}
	if !m.OwnedBy(caller) {
		return nil, ErrForbidden
	}
	return m, nil
}
