package shortcode

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"slices"
	"strconv"
	"time"

	"fastlink/internal/cache"

	"go.uber.org/zap"
)

const (
	// Charset 包含用于生成短码的所有字符 (base62)
	Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// DefaultLength 是生成的短码的默认长度
	DefaultLength = 5
	// DefaultMaxAttempts 是发生冲突时的最大尝试次数
	DefaultMaxAttempts = 5
	// MaxCustomLength 自定义短码的最大长度, 与数据库列宽一致
	MaxCustomLength = 32
)

// ErrExhausted 在重试次数内没有找到可用的短码
var ErrExhausted = errors.New("无法生成唯一短码")

var bigBase = big.NewInt(int64(len(Charset)))

// Generator 基于 URL 哈希生成短码, 并通过缓存检查冲突
type Generator struct {
	cache       cache.Cache
	length      int
	maxAttempts int
	reserveTTL  time.Duration
	logger      *zap.SugaredLogger
}

// Option 生成器可选配置
type Option func(*Generator)

// WithLength 设置短码长度
func WithLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.length = n
		}
	}
}

// WithMaxAttempts 设置冲突重试次数上限
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithReserveTTL 设置预占缓存条目的过期时间
func WithReserveTTL(ttl time.Duration) Option {
	return func(g *Generator) { g.reserveTTL = ttl }
}

// NewGenerator 创建一个新的短码生成器实例
func NewGenerator(c cache.Cache, logger *zap.SugaredLogger, opts ...Option) *Generator {
	g := &Generator{
		cache:       c,
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		reserveTTL:  24 * time.Hour,
		logger:      logger.Named("shortcode_generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Length 返回生成短码的长度
func (g *Generator) Length() int {
	return g.length
}

// MaxAttempts 返回单次生成的重试上限
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}

// Candidate 计算 url+salt 的 SHA-256, 转换为 base62 后截断
// 相同输入总是得到相同结果
func (g *Generator) Candidate(url, salt string) string {
	sum := sha256.Sum256([]byte(url + salt))
	encoded := encodeBase62(new(big.Int).SetBytes(sum[:]))
	if len(encoded) > g.length {
		return encoded[:g.length]
	}
	return encoded
}

// Generate 生成一个在缓存中不存在的短码, 并立即写入缓存预占
// exclude 中的短码视为已冲突 (例如已被数据库唯一约束拒绝)
func (g *Generator) Generate(ctx context.Context, url string, exclude ...string) (string, error) {
	salt := ""
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.Candidate(url, salt)
		salt = strconv.Itoa(attempt + 1)

		if slices.Contains(exclude, code) {
			continue
		}

		exists, err := g.cache.Exists(ctx, code)
		if err != nil {
			// 缓存不可用时直接采用候选短码, 由数据库唯一约束兜底
			g.logger.Warnf("检查短码冲突失败, 跳过缓存检查: %v", err)
			return code, nil
		}
		if exists {
			g.logger.Debugf("短码 %s 已存在, 第 %d 次重试", code, attempt+1)
			continue
		}

		if err := g.cache.Set(ctx, code, url, g.reserveTTL); err != nil {
			g.logger.Warnf("预占短码 %s 失败: %v", code, err)
		}
		return code, nil
	}
	g.logger.Warnf("已尝试 %d 次生成短码，但均存在冲突。", g.maxAttempts)
	return "", ErrExhausted
}

// Valid 检查自定义短码是否只包含字母和数字
func Valid(code string) bool {
	if code == "" || len(code) > MaxCustomLength {
		return false
	}
	for _, c := range code {
		if !isAlphanumeric(c) {
			return false
		}
	}
	return true
}

func isAlphanumeric(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// encodeBase62 反复除以 62 取余, 高位在前
func encodeBase62(num *big.Int) string {
	if num.Sign() == 0 {
		return string(Charset[0])
	}
	n := new(big.Int).Set(num)
	mod := new(big.Int)
	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, bigBase, mod)
		digits = append(digits, Charset[mod.Int64()])
	}
	slices.Reverse(digits)
	return string(digits)
}
