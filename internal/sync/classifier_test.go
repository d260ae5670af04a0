package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/oracle"
)

func TestClassifierClassify(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	t.Run("只保留判定相关的邮件且保持顺序", func(t *testing.T) {
		fake := &fakeOracle{
			classifyFunc: func(_ int, items []oracle.ClassifyItem) (map[int]bool, error) {
				return map[int]bool{0: true, 2: true}, nil
			},
		}
		classifier := NewClassifier(fake, 3, time.Millisecond, zap.NewNop())

		msgs := []domain.RawMessage{
			testMessage("m1", "Your order has shipped", now),
			testMessage("m2", "Weekly newsletter", now),
			testMessage("m3", "Order confirmed", now),
		}

		relevant, audit, err := classifier.Classify(context.Background(), msgs)
		require.NoError(t, err)
		require.Len(t, relevant, 2)
		assert.Equal(t, "m1", relevant[0].MessageID)
		assert.Equal(t, "m3", relevant[1].MessageID)

		require.Len(t, audit, 2)
		assert.Equal(t, "Your order has shipped", audit[0].Subject)
		assert.Equal(t, "m3", audit[1].MessageID)
		assert.Equal(t, 1, fake.classifyCalls)
	})

	t.Run("瞬时失败后重试成功", func(t *testing.T) {
		fake := &fakeOracle{
			classifyFunc: func(call int, items []oracle.ClassifyItem) (map[int]bool, error) {
				if call < 3 {
					return nil, errors.New("upstream timeout")
				}
				return map[int]bool{0: true}, nil
			},
		}
		classifier := NewClassifier(fake, 3, time.Millisecond, zap.NewNop())

		relevant, _, err := classifier.Classify(context.Background(), []domain.RawMessage{
			testMessage("m1", "Order shipped", now),
		})
		require.NoError(t, err)
		assert.Len(t, relevant, 1)
		assert.Equal(t, 3, fake.classifyCalls)
	})

	t.Run("重试耗尽后整批失败", func(t *testing.T) {
		fake := &fakeOracle{
			classifyFunc: func(_ int, _ []oracle.ClassifyItem) (map[int]bool, error) {
				return nil, errors.New("upstream down")
			},
		}
		classifier := NewClassifier(fake, 3, time.Millisecond, zap.NewNop())

		_, _, err := classifier.Classify(context.Background(), []domain.RawMessage{
			testMessage("m1", "Order shipped", now),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "classify batch")
		assert.Equal(t, 3, fake.classifyCalls)
	})

	t.Run("空批次不调用模型", func(t *testing.T) {
		fake := &fakeOracle{
			classifyFunc: func(_ int, _ []oracle.ClassifyItem) (map[int]bool, error) {
				t.Fatal("classify should not be called")
				return nil, nil
			},
		}
		classifier := NewClassifier(fake, 3, time.Millisecond, zap.NewNop())

		relevant, audit, err := classifier.Classify(context.Background(), nil)
		assert.NoError(t, err)
		assert.Nil(t, relevant)
		assert.Nil(t, audit)
		assert.Zero(t, fake.classifyCalls)
	})
}
