// Package cache 提供 Redis 缓存操作的封装
// 处理 JWT 黑名单、短文生成互斥锁等需要快速访问的数据
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"letter-learning-server/internal/config"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== JWT 黑名单 ====================
// 用于实现 Token 强制失效（登出）功能

// BlacklistToken 将 Token 加入黑名单
// 登出时调用，使当前 Token 失效
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	// 计算剩余有效时间
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}

	// 设置黑名单 Key
	// TTL 设置为 Token 的剩余有效期，过期后自动删除（因为 Token 本身也过期了）
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// JWT 验证中间件调用
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值
//
// 返回:
//   - bool: 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	// EXISTS 命令返回存在的 Key 数量
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== 短文生成互斥锁 ====================
// 同一用户同一天的短文生成调用远端工作流，耗时较长
// 用锁避免并发请求重复触发生成

// AcquireStoryLock 尝试获取某用户某天的短文生成锁
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - date: 短文日期（YYYY-MM-DD）
//   - ttl: 锁的自动过期时间，防止进程崩溃后死锁
//
// 返回:
//   - bool: 是否获取成功，false 表示已有生成任务在进行
//   - error: Redis 操作错误
func (c *RedisCache) AcquireStoryLock(ctx context.Context, userID int64, date string, ttl time.Duration) (bool, error) {
	// SETNX 保证同一时刻只有一个请求能拿到锁
	return c.client.SetNX(ctx, storyLockKey(userID, date), time.Now().Unix(), ttl).Result()
}

// ReleaseStoryLock 释放短文生成锁
// 生成完成（无论成败）后调用
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - date: 短文日期（YYYY-MM-DD）
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) ReleaseStoryLock(ctx context.Context, userID int64, date string) error {
	return c.client.Del(ctx, storyLockKey(userID, date)).Err()
}

func storyLockKey(userID int64, date string) string {
	return fmt.Sprintf("story:lock:%d:%s", userID, date)
}

// ==================== 通用方法 ====================

// Ping 检查 Redis 连接
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - error: 如果连接失败返回错误
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
