package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Run("数字直接通过", func(t *testing.T) {
		amount, err := ParseAmount(float64(129.99))
		assert.NoError(t, err)
		assert.Equal(t, 129.99, amount)
	})

	t.Run("带货币符号的字符串", func(t *testing.T) {
		amount, err := ParseAmount("$1,299.00")
		assert.NoError(t, err)
		assert.Equal(t, 1299.00, amount)
	})

	t.Run("负数金额拒绝", func(t *testing.T) {
		_, err := ParseAmount(float64(-5))
		assert.ErrorIs(t, err, ErrAmountNegative)

		_, err = ParseAmount("-12.50")
		assert.ErrorIs(t, err, ErrAmountNegative)
	})

	t.Run("空值回退为零", func(t *testing.T) {
		amount, err := ParseAmount(nil)
		assert.NoError(t, err)
		assert.Zero(t, amount)

		amount, err = ParseAmount("")
		assert.NoError(t, err)
		assert.Zero(t, amount)
	})

	t.Run("不支持的类型返回错误", func(t *testing.T) {
		_, err := ParseAmount([]string{"12"})
		assert.ErrorIs(t, err, ErrAmountInvalid)
	})
}

func TestNormalizeCurrency(t *testing.T) {
	t.Run("合法代码转大写", func(t *testing.T) {
		assert.Equal(t, "EUR", NormalizeCurrency("eur", "USD"))
	})

	t.Run("不合法代码回退默认值", func(t *testing.T) {
		assert.Equal(t, "USD", NormalizeCurrency("dollars", "USD"))
		assert.Equal(t, "USD", NormalizeCurrency("", "USD"))
	})
}

func TestValidateTrackingURL(t *testing.T) {
	t.Run("绝对 https 链接合法", func(t *testing.T) {
		assert.NoError(t, ValidateTrackingURL("https://track.example.com/p/123"))
	})

	t.Run("相对路径拒绝", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTrackingURL("/track/123"), ErrTrackingURLInvalid)
	})

	t.Run("非 http 协议拒绝", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTrackingURL("ftp://example.com/file"), ErrTrackingURLInvalid)
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("RFC3339 格式", func(t *testing.T) {
		ts, err := ParseTimestamp("2026-08-15T10:30:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC), ts)
	})

	t.Run("纯日期格式", func(t *testing.T) {
		ts, err := ParseTimestamp("2026-08-15")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), ts)
	})

	t.Run("无法解析返回错误", func(t *testing.T) {
		_, err := ParseTimestamp("next tuesday")
		assert.ErrorIs(t, err, ErrTimestampInvalid)
	})

	t.Run("空字符串返回错误", func(t *testing.T) {
		_, err := ParseTimestamp("  ")
		assert.ErrorIs(t, err, ErrTimestampInvalid)
	})
}
