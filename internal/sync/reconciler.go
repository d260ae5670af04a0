package sync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
)

// Reconciler 将去重后的抽取记录合并进持久化订单。
// 单个订单的存储读写失败逐条记录，不中断批次里其余订单的调和。
type Reconciler struct {
	store storage.OrderRepository
	log   *zap.Logger
}

// NewReconciler 创建调和器。
func NewReconciler(store storage.OrderRepository, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log,
	}
}

// Reconcile 逐条调和抽取记录，返回成功写入的数量与逐订单错误。
func (r *Reconciler) Reconcile(userID string, orders []domain.ExtractedOrder) (int, []domain.OrderError) {
	stored := 0
	var errs []domain.OrderError

	for _, order := range orders {
		if err := r.reconcileOne(userID, order); err != nil {
			r.log.Error("order reconciliation failed",
				zap.String("user_id", userID),
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
			errs = append(errs, domain.OrderError{
				OrderID: order.OrderID,
				Message: err.Error(),
			})
			continue
		}
		stored++
	}
	return stored, errs
}

// reconcileOne 调和单条记录。
func (r *Reconciler) reconcileOne(userID string, incoming domain.ExtractedOrder) error {
	existing, err := r.store.GetOrderByOrderID(userID, incoming.OrderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return r.insert(userID, incoming)
		}
		return fmt.Errorf("fetch order: %w", err)
	}

	if !incomingWins(incoming, existing) {
		// 迟到的旧邮件可能携带有价值的历史条目，标量字段保持不变
		if len(incoming.StatusHistory) == 0 {
			r.log.Debug("stale order record ignored",
				zap.String("order_id", incoming.OrderID),
				zap.Time("incoming_received_at", incoming.EmailReceivedAt),
				zap.Time("stored_received_at", existing.EmailReceivedAt),
			)
			return nil
		}
		if err := r.store.AppendStatusHistory(existing.ID, incoming.StatusHistory); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	}

	// 覆盖前把当前状态存入历史，保证没有状态丢失
	newHistory := make([]domain.StatusHistoryEntry, 0, len(incoming.StatusHistory)+1)
	newHistory = append(newHistory, domain.StatusHistoryEntry{
		ID:              uuid.NewString(),
		Status:          existing.LatestStatus,
		Timestamp:       existing.EmailReceivedAt,
		SourceMessageID: fmt.Sprintf("existing_%d", existing.EmailReceivedAt.UnixMilli()),
	})
	newHistory = append(newHistory, incoming.StatusHistory...)

	updated := *existing
	updated.Vendor = incoming.Vendor
	updated.TotalAmount = incoming.TotalAmount
	updated.Currency = incoming.Currency
	updated.OrderDate = incoming.OrderDate
	updated.LatestStatus = incoming.LatestStatus
	updated.TrackingURL = incoming.TrackingURL
	updated.EmailReceivedAt = incoming.EmailReceivedAt
	updated.SenderAddress = incoming.SenderAddress
	if incoming.Metadata != nil {
		updated.Metadata = incoming.Metadata
	}

	if err := r.store.UpdateOrder(&updated, newHistory, incoming.Return); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	r.log.Info("order updated",
		zap.String("order_id", incoming.OrderID),
		zap.String("status", string(incoming.LatestStatus)),
	)
	return nil
}

// insert 首次见到该 orderId，创建新的持久化订单。
func (r *Reconciler) insert(userID string, incoming domain.ExtractedOrder) error {
	order := &domain.StoredOrder{
		ID:              uuid.NewString(),
		UserID:          userID,
		OrderID:         incoming.OrderID,
		Vendor:          incoming.Vendor,
		TotalAmount:     incoming.TotalAmount,
		Currency:        incoming.Currency,
		OrderDate:       incoming.OrderDate,
		LatestStatus:    incoming.LatestStatus,
		TrackingURL:     incoming.TrackingURL,
		EmailReceivedAt: incoming.EmailReceivedAt,
		SenderAddress:   incoming.SenderAddress,
		Metadata:        incoming.Metadata,
		StatusHistory:   incoming.StatusHistory,
	}
	if incoming.Return != nil {
		ret := *incoming.Return
		order.Return = &ret
	}

	if err := r.store.InsertOrder(order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	r.log.Info("order created",
		zap.String("order_id", incoming.OrderID),
		zap.String("vendor", incoming.Vendor),
		zap.String("status", string(incoming.LatestStatus)),
	)
	return nil
}

// incomingWins 判定新记录是否应当覆盖已存状态。
// 首先比较邮件接收时间，严格更晚者胜；
// 时间完全相同时按生命周期顺序比较状态——模型可能截断亚秒精度，
// 状态更靠后的记录即便时间戳相同也应当胜出。
// 终止状态之间没有先后关系，只由时间戳决定。
func incomingWins(incoming domain.ExtractedOrder, existing *domain.StoredOrder) bool {
	incomingAt := incoming.EmailReceivedAt
	existingAt := existing.EmailReceivedAt

	if incomingAt.After(existingAt) {
		return true
	}
	if incomingAt.Equal(existingAt) {
		return domain.MoreAdvanced(incoming.LatestStatus, existing.LatestStatus)
	}
	return false
}
