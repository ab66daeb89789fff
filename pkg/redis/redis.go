// Package redis 根据缓存配置建立 Redis 连接
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"fastlink/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix 短链接缓存键前缀
	DefaultPrefix = "shortlink:"
	// DefaultTTL 缓存条目的最长存活时间
	DefaultTTL = 24 * time.Hour

	defaultPort     = 6379
	defaultPoolSize = 20
	pingTimeout     = 5 * time.Second
)

// ErrNoHost 未配置 cache.host
var ErrNoHost = errors.New("未配置 Redis 地址")

// Options 连接参数以及短链接缓存使用的键前缀和 TTL
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	TTL      time.Duration
}

// FromConfig 由缓存配置生成连接参数, 未配置的字段使用默认值
func FromConfig(c config.Cache) Options {
	opts := Options{
		Password: c.Password,
		DB:       c.DB,
		PoolSize: defaultPoolSize,
		Prefix:   c.Prefix,
		TTL:      c.TTL,
	}
	if c.Host != "" {
		port := c.Port
		if port == 0 {
			port = defaultPort
		}
		opts.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	return opts
}

// Connect 创建客户端并确认 Redis 可用, 失败时关闭客户端
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, ErrNoHost
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接失败 (%s): %w", opts.Addr, err)
	}
	return client, nil
}
