package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAmountInvalid 金额无法解析
	ErrAmountInvalid = errors.New("amount invalid")
	// ErrAmountNegative 金额为负数
	ErrAmountNegative = errors.New("amount must not be negative")
	// ErrCurrencyInvalid 货币代码不符合 ISO 4217 格式
	ErrCurrencyInvalid = errors.New("currency code invalid")
	// ErrTrackingURLInvalid 追踪链接不是合法的绝对 URL
	ErrTrackingURLInvalid = errors.New("tracking url invalid")
	// ErrTimestampInvalid 时间戳无法解析
	ErrTimestampInvalid = errors.New("timestamp invalid")
)

// ParseAmount 将模型输出的金额规整为非负十进制数。
// 模型可能返回数字，也可能返回带货币符号或千分位的字符串。
func ParseAmount(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		if v < 0 {
			return 0, ErrAmountNegative
		}
		return v, nil
	case string:
		cleaned := strings.TrimSpace(v)
		cleaned = strings.Map(func(r rune) rune {
			switch {
			case r >= '0' && r <= '9':
				return r
			case r == '.' || r == '-':
				return r
			}
			return -1
		}, cleaned)
		if cleaned == "" {
			return 0, nil
		}
		amount, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrAmountInvalid, v)
		}
		if amount < 0 {
			return 0, ErrAmountNegative
		}
		return amount, nil
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrAmountInvalid, value)
}

// NormalizeCurrency 校验货币代码；为空或不合法时返回 fallback。
func NormalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if ValidateCurrency(code) == nil {
		return code
	}
	return fallback
}

// ValidateCurrency 校验 ISO 4217 货币代码格式（三个大写字母）。
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return ErrCurrencyInvalid
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ErrCurrencyInvalid
		}
	}
	return nil
}

// ValidateTrackingURL 校验追踪链接必须是带 http/https 协议的绝对 URL。
func ValidateTrackingURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrTrackingURLInvalid
	}
	if !u.IsAbs() || u.Host == "" {
		return ErrTrackingURLInvalid
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrTrackingURLInvalid
	}
	return nil
}

// timestampLayouts 模型输出里常见的几种时间格式。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp 解析模型输出的时间字符串。
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrTimestampInvalid
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampInvalid, value)
}
