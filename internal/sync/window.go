package sync

import (
	"time"

	"ordersync/backend/internal/mailsource"
)

// defaultKeywords 订单相关邮件的主题关键词谓词。
var defaultKeywords = []string{
	"order",
	"shipped",
	"delivery",
	"tracking",
	"purchase",
	"confirmation",
	"your order",
	"has shipped",
	"order status",
	"order confirmed",
	"order received",
	"payment failed",
	"payment declined",
	"payment unsuccessful",
	"transaction failed",
}

// WindowBuilder 根据同步检查点计算本次检索的时间窗口与主题谓词。
// 纯计算，无副作用，总能产出合法窗口。
type WindowBuilder struct {
	firstSyncWindow time.Duration
	keywords        []string
	now             func() time.Time
}

// NewWindowBuilder 创建查询窗口构造器。
// firstSyncWindow 是首次同步回溯的时长，非正值时取一个月。
func NewWindowBuilder(firstSyncWindow time.Duration) *WindowBuilder {
	if firstSyncWindow <= 0 {
		firstSyncWindow = 30 * 24 * time.Hour
	}
	return &WindowBuilder{
		firstSyncWindow: firstSyncWindow,
		keywords:        defaultKeywords,
		now:             time.Now,
	}
}

// Build 计算检索窗口。
// lastSyncedAt 为 nil 表示首次同步，窗口从当前时间回溯 firstSyncWindow；
// 否则窗口从检查点开始，保证下一次同步严格接在上一次之后。
func (b *WindowBuilder) Build(lastSyncedAt *time.Time) mailsource.Query {
	end := b.now().UTC()
	var start time.Time
	if lastSyncedAt != nil {
		start = lastSyncedAt.UTC()
	} else {
		start = end.Add(-b.firstSyncWindow)
	}
	return mailsource.Query{
		Start:    start,
		End:      end,
		Keywords: b.keywords,
	}
}
