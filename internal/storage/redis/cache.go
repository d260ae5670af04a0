package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ordersync/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现
//
// 承担三类职责：订单列表的旁路缓存、同步检查点的快速读取、
// 以及基于 SET NX 的每用户同步互斥锁。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 订单列表缓存 ==========

// CacheOrderList 缓存用户的订单列表
func (c *Cache) CacheOrderList(userID string, orders []domain.StoredOrder, ttl time.Duration) error {
	key := fmt.Sprintf("orders:%s", userID)
	data, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedOrderList 获取缓存的订单列表
func (c *Cache) GetCachedOrderList(userID string) ([]domain.StoredOrder, error) {
	key := fmt.Sprintf("orders:%s", userID)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var orders []domain.StoredOrder
	if err := json.Unmarshal([]byte(data), &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// InvalidateOrderList 删除用户的订单列表缓存
// 调和器写入订单后调用，避免读到过期快照
func (c *Cache) InvalidateOrderList(userID string) error {
	key := fmt.Sprintf("orders:%s", userID)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 检查点缓存 ==========

// CacheLastSyncedAt 缓存用户的同步检查点
func (c *Cache) CacheLastSyncedAt(userID string, t time.Time, ttl time.Duration) error {
	key := fmt.Sprintf("checkpoint:%s", userID)
	return c.client.Set(c.ctx, key, t.UTC().Format(time.RFC3339Nano), ttl).Err()
}

// GetCachedLastSyncedAt 获取缓存的同步检查点
func (c *Cache) GetCachedLastSyncedAt(userID string) (*time.Time, error) {
	key := fmt.Sprintf("checkpoint:%s", userID)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ========== 同步互斥锁 ==========

// AcquireSyncLock 通过 SET NX 尝试获取用户的同步互斥锁
// TTL 兜底，持有方崩溃后锁自动过期
func (c *Cache) AcquireSyncLock(userID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("synclock:%s", userID)
	return c.client.SetNX(c.ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

// ReleaseSyncLock 释放用户的同步互斥锁
func (c *Cache) ReleaseSyncLock(userID string) error {
	key := fmt.Sprintf("synclock:%s", userID)
	return c.client.Del(c.ctx, key).Err()
}

// ========== Lifecycle ==========

// Health 检查 Redis 连接状态
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
