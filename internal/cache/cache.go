package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss 缓存中不存在该短码
var ErrMiss = errors.New("cache miss")

// Cache 短码 -> 原始 URL 的快速查找层, 不是权威数据源
type Cache interface {
	Get(ctx context.Context, code string) (string, error)
	// Set ttl <= 0 表示不过期
	Set(ctx context.Context, code, url string, ttl time.Duration) error
	Exists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, codes ...string) (int64, error)
	Ping(ctx context.Context) error
}

// RedisCache 基于 Redis 的缓存实现
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache 创建缓存, 所有键统一加上前缀
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(code string) string {
	return c.prefix + code
}

func (c *RedisCache) Get(ctx context.Context, code string) (string, error) {
	url, err := c.client.Get(ctx, c.key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("读取缓存失败: %w", err)
	}
	return url, nil
}

func (c *RedisCache) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(code), url, ttl).Err(); err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, code string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(code)).Result()
	if err != nil {
		return false, fmt.Errorf("检查缓存失败: %w", err)
	}
	return n == 1, nil
}

// Delete 返回实际删除的键数量
func (c *RedisCache) Delete(ctx context.Context, codes ...string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = c.key(code)
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("删除缓存失败: %w", err)
	}
	return n, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
