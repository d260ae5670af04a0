package memory

import (
	"sync"
	"time"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
)

// Store 使用内存保存订单与检查点数据，主要用于开发验证和测试。
type Store struct {
	mu          sync.RWMutex
	orders      map[string]map[string]*domain.StoredOrder // userID -> orderID -> order
	byRowID     map[string]*domain.StoredOrder            // 订单行 ID -> order
	checkpoints map[string]time.Time                      // userID -> lastSyncedAt
	locks       map[string]time.Time                      // userID -> 锁过期时间
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		orders:      make(map[string]map[string]*domain.StoredOrder),
		byRowID:     make(map[string]*domain.StoredOrder),
		checkpoints: make(map[string]time.Time),
		locks:       make(map[string]time.Time),
	}
}

// GetOrderByOrderID 按 (userID, orderID) 获取订单。
func (s *Store) GetOrderByOrderID(userID, orderID string) (*domain.StoredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userOrders, ok := s.orders[userID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	order, ok := userOrders[orderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// InsertOrder 插入新订单。
func (s *Store) InsertOrder(order *domain.StoredOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userOrders, ok := s.orders[order.UserID]
	if !ok {
		userOrders = make(map[string]*domain.StoredOrder)
		s.orders[order.UserID] = userOrders
	}
	if _, exists := userOrders[order.OrderID]; exists {
		return storage.ErrOrderExists
	}

	now := time.Now().UTC()
	stored := cloneOrder(order)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	userOrders[order.OrderID] = stored
	s.byRowID[stored.ID] = stored
	return nil
}

// UpdateOrder 覆盖订单标量字段并追加历史记录，必要时整体覆盖退货子记录。
func (s *Store) UpdateOrder(order *domain.StoredOrder, newHistory []domain.StatusHistoryEntry, returnUpsert *domain.ReturnInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userOrders, ok := s.orders[order.UserID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	stored, ok := userOrders[order.OrderID]
	if !ok {
		return storage.ErrOrderNotFound
	}

	stored.Vendor = order.Vendor
	stored.TotalAmount = order.TotalAmount
	stored.Currency = order.Currency
	stored.OrderDate = order.OrderDate
	stored.LatestStatus = order.LatestStatus
	stored.TrackingURL = order.TrackingURL
	stored.EmailReceivedAt = order.EmailReceivedAt
	stored.SenderAddress = order.SenderAddress
	if order.Metadata != nil {
		stored.Metadata = order.Metadata
	}
	stored.UpdatedAt = time.Now().UTC()

	appendHistoryLocked(stored, newHistory)

	if returnUpsert != nil {
		ret := *returnUpsert
		ret.StoredOrderID = stored.ID
		stored.Return = &ret
	}
	return nil
}

// AppendStatusHistory 只向既有订单追加历史记录。
func (s *Store) AppendStatusHistory(storedOrderID string, entries []domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byRowID[storedOrderID]
	if !ok {
		return storage.ErrOrderNotFound
	}
	appendHistoryLocked(stored, entries)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// ListOrdersByUserID 返回指定用户的全部订单，按下单时间倒序。
func (s *Store) ListOrdersByUserID(userID string) ([]domain.StoredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userOrders := s.orders[userID]
	result := make([]domain.StoredOrder, 0, len(userOrders))
	for _, order := range userOrders {
		result = append(result, *cloneOrder(order))
	}
	// 插入顺序不稳定，按下单时间倒序排列
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].OrderDate.After(result[i].OrderDate) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result, nil
}

// GetLastSyncedAt 返回用户的同步检查点；从未同步过时返回 nil。
func (s *Store) GetLastSyncedAt(userID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.checkpoints[userID]
	if !ok {
		return nil, nil
	}
	copied := t
	return &copied, nil
}

// SetLastSyncedAt 更新用户的同步检查点。
func (s *Store) SetLastSyncedAt(userID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[userID] = t.UTC()
	return nil
}

// AcquireSyncLock 获取用户的同步锁；已被持有且未过期时返回 false。
func (s *Store) AcquireSyncLock(userID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.locks[userID]; ok && expiry.After(now) {
		return false, nil
	}
	s.locks[userID] = now.Add(ttl)
	return true, nil
}

// ReleaseSyncLock 释放用户的同步锁。
func (s *Store) ReleaseSyncLock(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, userID)
	return nil
}

// Close 关闭存储。内存实现无需清理。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态。
func (s *Store) Health() error {
	return nil
}

// appendHistoryLocked 追加历史记录，调用方必须持有写锁。
func appendHistoryLocked(stored *domain.StoredOrder, entries []domain.StatusHistoryEntry) {
	for _, entry := range entries {
		e := entry
		e.StoredOrderID = stored.ID
		stored.StatusHistory = append(stored.StatusHistory, e)
	}
}

// cloneOrder 深拷贝订单，避免调用方修改内部状态。
func cloneOrder(order *domain.StoredOrder) *domain.StoredOrder {
	copied := *order
	if order.StatusHistory != nil {
		copied.StatusHistory = make([]domain.StatusHistoryEntry, len(order.StatusHistory))
		copy(copied.StatusHistory, order.StatusHistory)
	}
	if order.Return != nil {
		ret := *order.Return
		copied.Return = &ret
	}
	if order.Metadata != nil {
		copied.Metadata = make(map[string]any, len(order.Metadata))
		for k, v := range order.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
