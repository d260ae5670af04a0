package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/oracle"
)

// Classifier 调用语言模型判断一批邮件是否与订单相关。
// 纯过滤，不做抽取；模型的判定直接采信，不做本地启发式覆盖。
type Classifier struct {
	oracle     oracle.LanguageOracle
	maxRetries int
	retryBase  time.Duration
	log        *zap.Logger
}

// NewClassifier 创建相关性分类器。
func NewClassifier(o oracle.LanguageOracle, maxRetries int, retryBase time.Duration, log *zap.Logger) *Classifier {
	return &Classifier{
		oracle:     o,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		log:        log,
	}
}

// Classify 返回被判定为订单相关的邮件子序列，保持输入顺序。
// 一个批次只发起一次模型调用；瞬时失败按线性退避重试，
// 重试耗尽则整批失败并向上传播——相关性判定是后续所有工作的前置条件。
func (c *Classifier) Classify(ctx context.Context, messages []domain.RawMessage) ([]domain.RawMessage, []domain.RelevantEmail, error) {
	if len(messages) == 0 {
		return nil, nil, nil
	}

	items := make([]oracle.ClassifyItem, len(messages))
	for i, msg := range messages {
		items[i] = oracle.ClassifyItem{
			Subject: msg.Subject,
			Sender:  msg.Sender,
		}
	}

	var verdicts map[int]bool
	err := retryLinear(ctx, c.maxRetries, c.retryBase, func() error {
		result, callErr := c.oracle.Classify(ctx, items)
		if callErr != nil {
			c.log.Warn("classification call failed, will retry",
				zap.Int("batch_size", len(items)),
				zap.Error(callErr),
			)
			return callErr
		}
		verdicts = result
		return nil
	})
	if err != nil {
		c.log.Error("classification retries exhausted",
			zap.Int("batch_size", len(items)),
			zap.Error(err),
		)
		return nil, nil, fmt.Errorf("classify batch: %w", err)
	}

	relevant := make([]domain.RawMessage, 0, len(messages))
	audit := make([]domain.RelevantEmail, 0, len(messages))
	for i, msg := range messages {
		if !verdicts[i] {
			continue
		}
		relevant = append(relevant, msg)
		audit = append(audit, domain.RelevantEmail{
			Subject:    msg.Subject,
			MessageID:  msg.MessageID,
			ReceivedAt: msg.ReceivedAt,
		})
	}

	c.log.Info("classification completed",
		zap.Int("total", len(messages)),
		zap.Int("relevant", len(relevant)),
	)
	return relevant, audit, nil
}
