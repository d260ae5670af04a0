package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowBuilderBuild(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	builder := NewWindowBuilder(30 * 24 * time.Hour)
	builder.now = func() time.Time { return now }

	t.Run("首次同步回溯一个月", func(t *testing.T) {
		query := builder.Build(nil)

		assert.Equal(t, now.Add(-30*24*time.Hour), query.Start)
		assert.Equal(t, now, query.End)
	})

	t.Run("有检查点时窗口从检查点开始", func(t *testing.T) {
		last := time.Date(2026, 8, 19, 8, 0, 0, 0, time.UTC)
		query := builder.Build(&last)

		assert.Equal(t, last, query.Start)
		assert.Equal(t, now, query.End)
	})

	t.Run("检查点带时区时归一化为 UTC", func(t *testing.T) {
		loc := time.FixedZone("CST", 8*3600)
		last := time.Date(2026, 8, 19, 16, 0, 0, 0, loc)
		query := builder.Build(&last)

		assert.Equal(t, last.UTC(), query.Start)
	})

	t.Run("窗口携带检索关键词", func(t *testing.T) {
		query := builder.Build(nil)

		assert.NotEmpty(t, query.Keywords)
		assert.Contains(t, query.Keywords, "order")
		assert.Contains(t, query.Keywords, "tracking")
		assert.Contains(t, query.Keywords, "payment failed")
	})

	t.Run("非正回溯时长取默认值", func(t *testing.T) {
		b := NewWindowBuilder(0)
		b.now = func() time.Time { return now }
		query := b.Build(nil)

		assert.Equal(t, now.Add(-30*24*time.Hour), query.Start)
	})
}
