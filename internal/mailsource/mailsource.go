package mailsource

import (
	"context"
	"time"

	"ordersync/backend/internal/domain"
)

// Query 描述一次邮件检索的时间窗口与主题关键词谓词。
type Query struct {
	Start    time.Time
	End      time.Time
	Keywords []string
}

// MailSource 封装外部邮件源的检索能力。
// 拉取式接口，分页由实现方处理，返回一个有限批次。
// 实现必须支持并发调用。
type MailSource interface {
	Search(ctx context.Context, userID string, query Query) ([]domain.RawMessage, error)
}
