package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
)

func storedOrder(userID, orderID string, orderDate time.Time) *domain.StoredOrder {
	return &domain.StoredOrder{
		ID:              "row-" + orderID,
		UserID:          userID,
		OrderID:         orderID,
		Vendor:          "Example Shop",
		TotalAmount:     49.99,
		Currency:        "USD",
		OrderDate:       orderDate,
		LatestStatus:    domain.StatusOrdered,
		EmailReceivedAt: orderDate.Add(time.Hour),
		SenderAddress:   "orders@shop.example.com",
	}
}

func TestStoreOrders(t *testing.T) {
	const userID = "user-1"
	base := time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)

	t.Run("插入后可按订单号读取", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-1", base)))

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", got.OrderID)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("重复插入返回已存在", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-1", base)))
		err := store.InsertOrder(storedOrder(userID, "ORD-1", base))
		assert.ErrorIs(t, err, storage.ErrOrderExists)
	})

	t.Run("未找到返回特定错误", func(t *testing.T) {
		store := NewStore()
		_, err := store.GetOrderByOrderID(userID, "missing")
		assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	})

	t.Run("不同用户的订单互相隔离", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder("user-a", "ORD-1", base)))

		_, err := store.GetOrderByOrderID("user-b", "ORD-1")
		assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	})

	t.Run("读取结果与内部状态隔离", func(t *testing.T) {
		store := NewStore()
		order := storedOrder(userID, "ORD-1", base)
		order.Metadata = map[string]any{"carrier": "DHL"}
		require.NoError(t, store.InsertOrder(order))

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		got.Vendor = "Mutated"
		got.Metadata["carrier"] = "UPS"

		again, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "Example Shop", again.Vendor)
		assert.Equal(t, "DHL", again.Metadata["carrier"])
	})

	t.Run("更新覆盖标量并追加历史", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-1", base)))

		updated := storedOrder(userID, "ORD-1", base)
		updated.LatestStatus = domain.StatusShipped
		updated.TrackingURL = "https://track.example.com/ORD-1"
		history := []domain.StatusHistoryEntry{
			{ID: "h1", Status: domain.StatusShipped, Timestamp: base.Add(2 * time.Hour), SourceMessageID: "m2"},
		}
		ret := &domain.ReturnInfo{Status: domain.ReturnInitiated}
		require.NoError(t, store.UpdateOrder(updated, history, ret))

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusShipped, got.LatestStatus)
		assert.Equal(t, "https://track.example.com/ORD-1", got.TrackingURL)
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, "row-ORD-1", got.StatusHistory[0].StoredOrderID)
		require.NotNil(t, got.Return)
		assert.Equal(t, domain.ReturnInitiated, got.Return.Status)
	})

	t.Run("更新不存在的订单返回未找到", func(t *testing.T) {
		store := NewStore()
		err := store.UpdateOrder(storedOrder(userID, "missing", base), nil, nil)
		assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	})

	t.Run("按行ID追加历史不改标量", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-1", base)))

		entries := []domain.StatusHistoryEntry{
			{ID: "h1", Status: domain.StatusPacked, Timestamp: base, SourceMessageID: "m-late"},
		}
		require.NoError(t, store.AppendStatusHistory("row-ORD-1", entries))

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOrdered, got.LatestStatus)
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, "m-late", got.StatusHistory[0].SourceMessageID)

		err = store.AppendStatusHistory("row-missing", entries)
		assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	})

	t.Run("列表按下单时间倒序", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-old", base)))
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-new", base.Add(48*time.Hour))))
		require.NoError(t, store.InsertOrder(storedOrder(userID, "ORD-mid", base.Add(24*time.Hour))))

		orders, err := store.ListOrdersByUserID(userID)
		require.NoError(t, err)
		require.Len(t, orders, 3)
		assert.Equal(t, "ORD-new", orders[0].OrderID)
		assert.Equal(t, "ORD-mid", orders[1].OrderID)
		assert.Equal(t, "ORD-old", orders[2].OrderID)
	})
}

func TestStoreCheckpoints(t *testing.T) {
	const userID = "user-1"

	t.Run("从未同步过返回空", func(t *testing.T) {
		store := NewStore()
		last, err := store.GetLastSyncedAt(userID)
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("写入后读回并归一化为UTC", func(t *testing.T) {
		store := NewStore()
		zone := time.FixedZone("CST", 8*3600)
		at := time.Date(2026, 8, 20, 18, 0, 0, 0, zone)
		require.NoError(t, store.SetLastSyncedAt(userID, at))

		last, err := store.GetLastSyncedAt(userID)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, time.UTC, last.Location())
		assert.True(t, last.Equal(at))
	})
}

func TestStoreSyncLocks(t *testing.T) {
	const userID = "user-1"

	t.Run("锁未释放前不可重入", func(t *testing.T) {
		store := NewStore()
		acquired, err := store.AcquireSyncLock(userID, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)

		acquired, err = store.AcquireSyncLock(userID, time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)

		require.NoError(t, store.ReleaseSyncLock(userID))
		acquired, err = store.AcquireSyncLock(userID, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("过期的锁可被重新获取", func(t *testing.T) {
		store := NewStore()
		acquired, err := store.AcquireSyncLock(userID, 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, acquired)

		time.Sleep(20 * time.Millisecond)
		acquired, err = store.AcquireSyncLock(userID, time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})

	t.Run("不同用户的锁互不影响", func(t *testing.T) {
		store := NewStore()
		acquired, err := store.AcquireSyncLock("user-a", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)

		acquired, err = store.AcquireSyncLock("user-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, acquired)
	})
}
