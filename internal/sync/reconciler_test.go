package sync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
	"ordersync/backend/internal/storage/memory"
)

func extractedOrder(orderID string, status domain.OrderStatus, receivedAt time.Time) domain.ExtractedOrder {
	return domain.ExtractedOrder{
		OrderID:         orderID,
		Vendor:          "Example Shop",
		TotalAmount:     49.99,
		Currency:        "USD",
		OrderDate:       receivedAt.Add(-24 * time.Hour),
		LatestStatus:    status,
		EmailReceivedAt: receivedAt,
		SenderAddress:   "orders@shop.example.com",
	}
}

func TestReconcilerReconcile(t *testing.T) {
	const userID = "user-1"
	base := time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)

	t.Run("首次见到的订单直接创建", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		incoming := extractedOrder("ORD-1", domain.StatusOrdered, base)
		incoming.Return = &domain.ReturnInfo{Status: domain.ReturnInitiated}

		stored, errs := rec.Reconcile(userID, []domain.ExtractedOrder{incoming})
		assert.Equal(t, 1, stored)
		assert.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "Example Shop", got.Vendor)
		assert.Equal(t, domain.StatusOrdered, got.LatestStatus)
		assert.NotEmpty(t, got.ID)
		require.NotNil(t, got.Return)
		assert.Equal(t, domain.ReturnInitiated, got.Return.Status)
	})

	t.Run("接收时间更晚的记录覆盖旧状态", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		first := extractedOrder("ORD-1", domain.StatusOrdered, base)
		_, errs := rec.Reconcile(userID, []domain.ExtractedOrder{first})
		require.Empty(t, errs)

		second := extractedOrder("ORD-1", domain.StatusShipped, base.Add(2*time.Hour))
		second.Vendor = "Example Shop Intl"
		second.TrackingURL = "https://track.example.com/ORD-1"
		second.StatusHistory = []domain.StatusHistoryEntry{
			{ID: "h1", Status: domain.StatusShipped, Timestamp: base.Add(2 * time.Hour), SourceMessageID: "m2"},
		}

		stored, errs := rec.Reconcile(userID, []domain.ExtractedOrder{second})
		assert.Equal(t, 1, stored)
		assert.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusShipped, got.LatestStatus)
		assert.Equal(t, "Example Shop Intl", got.Vendor)
		assert.Equal(t, "https://track.example.com/ORD-1", got.TrackingURL)
		assert.Equal(t, base.Add(2*time.Hour), got.EmailReceivedAt)

		// 覆盖前的状态被保存为历史条目，排在新条目之前
		require.Len(t, got.StatusHistory, 2)
		assert.Equal(t, domain.StatusOrdered, got.StatusHistory[0].Status)
		assert.Equal(t, fmt.Sprintf("existing_%d", base.UnixMilli()), got.StatusHistory[0].SourceMessageID)
		assert.Equal(t, "m2", got.StatusHistory[1].SourceMessageID)
	})

	t.Run("接收时间相同时生命周期更靠后者胜出", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		shipped := extractedOrder("ORD-1", domain.StatusShipped, base)
		_, errs := rec.Reconcile(userID, []domain.ExtractedOrder{shipped})
		require.Empty(t, errs)

		delivered := extractedOrder("ORD-1", domain.StatusDelivered, base)
		_, errs = rec.Reconcile(userID, []domain.ExtractedOrder{delivered})
		require.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, got.LatestStatus)
		// 被覆盖的 shipped 进入历史
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, domain.StatusShipped, got.StatusHistory[0].Status)
	})

	t.Run("迟到的旧邮件不覆盖标量但历史条目被保留", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		newer := extractedOrder("ORD-1", domain.StatusDelivered, base.Add(48*time.Hour))
		_, errs := rec.Reconcile(userID, []domain.ExtractedOrder{newer})
		require.Empty(t, errs)

		late := extractedOrder("ORD-1", domain.StatusShipped, base)
		late.Vendor = "Stale Vendor"
		late.StatusHistory = []domain.StatusHistoryEntry{
			{ID: "h1", Status: domain.StatusShipped, Timestamp: base, SourceMessageID: "m-late"},
		}

		stored, errs := rec.Reconcile(userID, []domain.ExtractedOrder{late})
		assert.Equal(t, 1, stored)
		assert.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, got.LatestStatus)
		assert.Equal(t, "Example Shop", got.Vendor)
		require.Len(t, got.StatusHistory, 1)
		assert.Equal(t, "m-late", got.StatusHistory[0].SourceMessageID)
	})

	t.Run("迟到且无历史条目的记录被整条忽略", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		newer := extractedOrder("ORD-1", domain.StatusDelivered, base.Add(48*time.Hour))
		_, errs := rec.Reconcile(userID, []domain.ExtractedOrder{newer})
		require.Empty(t, errs)

		late := extractedOrder("ORD-1", domain.StatusShipped, base)
		stored, errs := rec.Reconcile(userID, []domain.ExtractedOrder{late})
		assert.Equal(t, 1, stored)
		assert.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Empty(t, got.StatusHistory)
	})

	t.Run("终止状态之间只看时间戳", func(t *testing.T) {
		store := memory.NewStore()
		rec := NewReconciler(store, zap.NewNop())

		cancelled := extractedOrder("ORD-1", domain.StatusCancelled, base)
		_, errs := rec.Reconcile(userID, []domain.ExtractedOrder{cancelled})
		require.Empty(t, errs)

		// 相同时间戳的另一终止状态没有先后关系，不覆盖
		returned := extractedOrder("ORD-1", domain.StatusReturned, base)
		_, errs = rec.Reconcile(userID, []domain.ExtractedOrder{returned})
		require.Empty(t, errs)

		got, err := store.GetOrderByOrderID(userID, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, got.LatestStatus)
	})

	t.Run("单个订单的存储失败不中断批次", func(t *testing.T) {
		store := &failingRepo{inner: memory.NewStore(), failOrderID: "ORD-2"}
		rec := NewReconciler(store, zap.NewNop())

		orders := []domain.ExtractedOrder{
			extractedOrder("ORD-1", domain.StatusOrdered, base),
			extractedOrder("ORD-2", domain.StatusOrdered, base),
			extractedOrder("ORD-3", domain.StatusOrdered, base),
		}

		stored, errs := rec.Reconcile(userID, orders)
		assert.Equal(t, 2, stored)
		require.Len(t, errs, 1)
		assert.Equal(t, "ORD-2", errs[0].OrderID)
		assert.Contains(t, errs[0].Message, "insert order")
	})
}

// failingRepo 对指定 orderID 的写入注入失败，其余操作委托给内部存储。
type failingRepo struct {
	inner       storage.OrderRepository
	failOrderID string
}

func (f *failingRepo) GetOrderByOrderID(userID, orderID string) (*domain.StoredOrder, error) {
	return f.inner.GetOrderByOrderID(userID, orderID)
}

func (f *failingRepo) InsertOrder(order *domain.StoredOrder) error {
	if order.OrderID == f.failOrderID {
		return errors.New("disk full")
	}
	return f.inner.InsertOrder(order)
}

func (f *failingRepo) UpdateOrder(order *domain.StoredOrder, newHistory []domain.StatusHistoryEntry, returnUpsert *domain.ReturnInfo) error {
	if order.OrderID == f.failOrderID {
		return errors.New("disk full")
	}
	return f.inner.UpdateOrder(order, newHistory, returnUpsert)
}

func (f *failingRepo) AppendStatusHistory(storedOrderID string, entries []domain.StatusHistoryEntry) error {
	return f.inner.AppendStatusHistory(storedOrderID, entries)
}

func (f *failingRepo) ListOrdersByUserID(userID string) ([]domain.StoredOrder, error) {
	return f.inner.ListOrdersByUserID(userID)
}
