package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
)

func TestDeduplicate(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	t.Run("批内重复保留先出现者", func(t *testing.T) {
		orders := []domain.ExtractedOrder{
			{OrderID: "ORD-1", Vendor: "First", EmailReceivedAt: now},
			{OrderID: "ORD-2", Vendor: "Other", EmailReceivedAt: now},
			{OrderID: "ORD-1", Vendor: "Second", EmailReceivedAt: now.Add(time.Hour)},
		}

		result := Deduplicate(orders, zap.NewNop())
		require.Len(t, result, 2)
		assert.Equal(t, "ORD-1", result[0].OrderID)
		assert.Equal(t, "First", result[0].Vendor)
		assert.Equal(t, "ORD-2", result[1].OrderID)
	})

	t.Run("无重复时原样返回", func(t *testing.T) {
		orders := []domain.ExtractedOrder{
			{OrderID: "ORD-1"},
			{OrderID: "ORD-2"},
		}
		result := Deduplicate(orders, zap.NewNop())
		assert.Equal(t, orders, result)
	})

	t.Run("空输入", func(t *testing.T) {
		assert.Empty(t, Deduplicate(nil, zap.NewNop()))
	})
}
