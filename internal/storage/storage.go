package storage

import (
	"errors"
	"time"

	"ordersync/backend/internal/domain"
)

var (
	// ErrOrderNotFound 订单未找到错误
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists 订单已存在错误
	ErrOrderExists = errors.New("order already exists")
)

// OrderRepository 定义订单聚合的存取操作。
// (userID, orderID) 组合唯一对应一条记录。
type OrderRepository interface {
	GetOrderByOrderID(userID, orderID string) (*domain.StoredOrder, error)
	InsertOrder(order *domain.StoredOrder) error
	// UpdateOrder 覆盖订单标量字段，追加 newHistory 中的历史记录，
	// 并在 returnUpsert 非空时整体覆盖退货子记录。
	UpdateOrder(order *domain.StoredOrder, newHistory []domain.StatusHistoryEntry, returnUpsert *domain.ReturnInfo) error
	// AppendStatusHistory 只向既有订单追加历史记录，不改动标量字段。
	AppendStatusHistory(storedOrderID string, entries []domain.StatusHistoryEntry) error
	ListOrdersByUserID(userID string) ([]domain.StoredOrder, error)
}

// CheckpointRepository 定义每用户同步检查点的存取操作。
type CheckpointRepository interface {
	// GetLastSyncedAt 返回用户上次同步完成的时间；从未同步过时返回 nil。
	GetLastSyncedAt(userID string) (*time.Time, error)
	SetLastSyncedAt(userID string, t time.Time) error
}

// SyncLockRepository 定义同步互斥锁操作，保证同一用户同时只有一次同步在执行。
type SyncLockRepository interface {
	AcquireSyncLock(userID string, ttl time.Duration) (bool, error)
	ReleaseSyncLock(userID string) error
}

// Store 聚合订单同步系统需要的全部存储能力。
type Store interface {
	OrderRepository
	CheckpointRepository
	SyncLockRepository

	Close() error
	Health() error
}
