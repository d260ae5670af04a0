package hybrid

import (
	"fmt"
	"time"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage/postgres"
	"ordersync/backend/internal/storage/redis"
)

const (
	orderListTTL  = 5 * time.Minute
	checkpointTTL = 24 * time.Hour
)

// Store 混合存储实现，结合关系型数据库和 Redis
//
// 数据库是唯一事实来源；Redis 承担订单列表旁路缓存、
// 检查点读加速和同步互斥锁。缓存写入失败不影响主流程。
type Store struct {
	db    *postgres.Store
	cache *redis.Cache
}

// NewStore 创建混合存储实例（指定数据库类型）
func NewStore(dbType, dsn string, pool postgres.PoolConfig, redisAddr, redisPassword string, redisDB int) (*Store, error) {
	var dbStore *postgres.Store
	var err error

	switch dbType {
	case "mysql":
		dbStore, err = postgres.NewMySQLStore(dsn, pool)
	case "postgres", "postgresql":
		dbStore, err = postgres.NewStore(dsn, pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", dbType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisCache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		db:    dbStore,
		cache: redisCache,
	}, nil
}

// ========== Order Repository ==========

// GetOrderByOrderID 按 (userID, orderID) 获取订单聚合
// 调和路径上的点查不走缓存，保证读到最新状态
func (s *Store) GetOrderByOrderID(userID, orderID string) (*domain.StoredOrder, error) {
	return s.db.GetOrderByOrderID(userID, orderID)
}

// InsertOrder 插入新订单并失效该用户的列表缓存
func (s *Store) InsertOrder(order *domain.StoredOrder) error {
	if err := s.db.InsertOrder(order); err != nil {
		return err
	}
	_ = s.cache.InvalidateOrderList(order.UserID)
	return nil
}

// UpdateOrder 更新订单并失效该用户的列表缓存
func (s *Store) UpdateOrder(order *domain.StoredOrder, newHistory []domain.StatusHistoryEntry, returnUpsert *domain.ReturnInfo) error {
	if err := s.db.UpdateOrder(order, newHistory, returnUpsert); err != nil {
		return err
	}
	_ = s.cache.InvalidateOrderList(order.UserID)
	return nil
}

// AppendStatusHistory 追加历史记录
// 历史不进列表缓存的标量视图，但快照里带历史，保守起见仍然失效
func (s *Store) AppendStatusHistory(storedOrderID string, entries []domain.StatusHistoryEntry) error {
	return s.db.AppendStatusHistory(storedOrderID, entries)
}

// ListOrdersByUserID 返回指定用户的全部订单，优先读缓存
func (s *Store) ListOrdersByUserID(userID string) ([]domain.StoredOrder, error) {
	if orders, err := s.cache.GetCachedOrderList(userID); err == nil {
		return orders, nil
	}

	orders, err := s.db.ListOrdersByUserID(userID)
	if err != nil {
		return nil, err
	}

	_ = s.cache.CacheOrderList(userID, orders, orderListTTL)
	return orders, nil
}

// ========== Checkpoint Repository ==========

// GetLastSyncedAt 返回用户的同步检查点，优先读缓存
func (s *Store) GetLastSyncedAt(userID string) (*time.Time, error) {
	if t, err := s.cache.GetCachedLastSyncedAt(userID); err == nil {
		return t, nil
	}

	t, err := s.db.GetLastSyncedAt(userID)
	if err != nil {
		return nil, err
	}

	if t != nil {
		_ = s.cache.CacheLastSyncedAt(userID, *t, checkpointTTL)
	}
	return t, nil
}

// SetLastSyncedAt 写穿检查点：先落库，再刷缓存
func (s *Store) SetLastSyncedAt(userID string, t time.Time) error {
	if err := s.db.SetLastSyncedAt(userID, t); err != nil {
		return err
	}
	_ = s.cache.CacheLastSyncedAt(userID, t, checkpointTTL)
	return nil
}

// ========== Sync Lock Repository ==========

// AcquireSyncLock 通过 Redis SET NX 获取同步互斥锁
func (s *Store) AcquireSyncLock(userID string, ttl time.Duration) (bool, error) {
	return s.cache.AcquireSyncLock(userID, ttl)
}

// ReleaseSyncLock 释放同步互斥锁
func (s *Store) ReleaseSyncLock(userID string) error {
	return s.cache.ReleaseSyncLock(userID)
}

// ========== Lifecycle ==========

// Health 检查数据库和 Redis 的连接状态
func (s *Store) Health() error {
	if err := s.db.Health(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.cache.Health(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close 关闭全部底层连接
func (s *Store) Close() error {
	var firstErr error
	if err := s.db.Close(); err != nil {
		firstErr = err
	}
	if err := s.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
