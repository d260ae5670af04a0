package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrderStatus(t *testing.T) {
	t.Run("解析合法状态", func(t *testing.T) {
		status, err := ParseOrderStatus("shipped")
		assert.NoError(t, err)
		assert.Equal(t, StatusShipped, status)
	})

	t.Run("大小写与空白归一化", func(t *testing.T) {
		status, err := ParseOrderStatus("  Delivered ")
		assert.NoError(t, err)
		assert.Equal(t, StatusDelivered, status)
	})

	t.Run("未知状态返回错误", func(t *testing.T) {
		_, err := ParseOrderStatus("teleported")
		assert.Error(t, err)
	})

	t.Run("空字符串返回错误", func(t *testing.T) {
		_, err := ParseOrderStatus("")
		assert.Error(t, err)
	})
}

func TestOrderStatusLifecycleRank(t *testing.T) {
	t.Run("活跃状态有序", func(t *testing.T) {
		ordered, ok1 := StatusOrdered.LifecycleRank()
		shipped, ok2 := StatusShipped.LifecycleRank()
		delivered, ok3 := StatusDelivered.LifecycleRank()

		assert.True(t, ok1)
		assert.True(t, ok2)
		assert.True(t, ok3)
		assert.Less(t, ordered, shipped)
		assert.Less(t, shipped, delivered)
	})

	t.Run("confirmed 与 processing 同级", func(t *testing.T) {
		confirmed, _ := StatusConfirmed.LifecycleRank()
		processing, _ := StatusProcessing.LifecycleRank()
		assert.Equal(t, confirmed, processing)
	})

	t.Run("终止状态没有生命周期序号", func(t *testing.T) {
		for _, status := range []OrderStatus{StatusCancelled, StatusPaymentFailed, StatusReturned} {
			_, ok := status.LifecycleRank()
			assert.False(t, ok, "status %s should not be ranked", status)
		}
	})
}

func TestOrderStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusPaymentFailed.IsTerminal())
	assert.True(t, StatusReturned.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())
	assert.False(t, StatusOrdered.IsTerminal())
}

func TestMoreAdvanced(t *testing.T) {
	t.Run("生命周期靠后的状态胜出", func(t *testing.T) {
		assert.True(t, MoreAdvanced(StatusDelivered, StatusShipped))
		assert.True(t, MoreAdvanced(StatusShipped, StatusOrdered))
		assert.False(t, MoreAdvanced(StatusOrdered, StatusShipped))
	})

	t.Run("相同级别不胜出", func(t *testing.T) {
		assert.False(t, MoreAdvanced(StatusConfirmed, StatusProcessing))
		assert.False(t, MoreAdvanced(StatusShipped, StatusShipped))
	})

	t.Run("终止状态之间没有先后关系", func(t *testing.T) {
		assert.False(t, MoreAdvanced(StatusCancelled, StatusReturned))
		assert.False(t, MoreAdvanced(StatusReturned, StatusCancelled))
	})

	t.Run("任一方为终止状态时不比较", func(t *testing.T) {
		assert.False(t, MoreAdvanced(StatusCancelled, StatusOrdered))
		assert.False(t, MoreAdvanced(StatusDelivered, StatusCancelled))
	})
}

func TestParseReturnStatus(t *testing.T) {
	t.Run("解析合法退货状态", func(t *testing.T) {
		status, err := ParseReturnStatus("refunded")
		assert.NoError(t, err)
		assert.Equal(t, ReturnRefunded, status)
	})

	t.Run("未知退货状态返回错误", func(t *testing.T) {
		_, err := ParseReturnStatus("lost")
		assert.Error(t, err)
	})
}
