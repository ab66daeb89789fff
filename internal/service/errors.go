package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("短链接不存在")
	ErrExpired             = errors.New("短链接已过期")
	ErrCodeAlreadyExists   = errors.New("短码已存在，请换一个")
	ErrInvalidExpiration   = errors.New("过期时间必须晚于当前时间")
	ErrGenerationExhausted = errors.New("无法生成唯一短码，请稍后再试")
	ErrForbidden           = errors.New("无权操作该短链接")
	ErrTransientStore      = errors.New("存储暂时不可用")
	ErrInvalidURL          = errors.New("无效的 URL")
	ErrInvalidCode         = errors.New("短码只能包含字母和数字")
	ErrInvalidListKind     = errors.New("url_type 只能是 active 或 expired")
)

// transient 把底层存储或缓存错误归为 ErrTransientStore, 保留原始错误链
func transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransientStore, err)
}
