package sync

import (
	"context"
	"time"
)

// retryLinear 以线性退避执行 fn，最多 maxAttempts 次。
// 第 n 次失败后等待 n*base 再重试；全部失败时返回最后一次的错误。
// 退避期间响应 ctx 取消。
func retryLinear(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(attempt) * base
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
