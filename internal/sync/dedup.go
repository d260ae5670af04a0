package sync

import (
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
)

// Deduplicate 折叠一次同步内 orderId 重复的抽取记录，先出现者保留。
// 同一窗口里确认邮件和发货通知可能被抽成同一个 orderId；
// 多版本合并是调和器的职责，批内重复必须先收敛，避免产生冗余历史。
func Deduplicate(orders []domain.ExtractedOrder, log *zap.Logger) []domain.ExtractedOrder {
	seen := make(map[string]struct{}, len(orders))
	result := make([]domain.ExtractedOrder, 0, len(orders))

	for _, order := range orders {
		if _, dup := seen[order.OrderID]; dup {
			log.Info("duplicate order id collapsed",
				zap.String("order_id", order.OrderID),
				zap.String("vendor", order.Vendor),
			)
			continue
		}
		seen[order.OrderID] = struct{}{}
		result = append(result, order)
	}
	return result
}
