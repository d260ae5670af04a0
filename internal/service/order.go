package service

import (
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/storage"
)

// OrderService 订单查询服务
type OrderService struct {
	store storage.OrderRepository
	log   *zap.Logger
}

// NewOrderService 创建订单查询服务
func NewOrderService(store storage.OrderRepository, log *zap.Logger) *OrderService {
	return &OrderService{
		store: store,
		log:   log,
	}
}

// ListOrders 返回指定用户的全部订单，按下单日期倒序
func (s *OrderService) ListOrders(userID string) ([]domain.StoredOrder, error) {
	orders, err := s.store.ListOrdersByUserID(userID)
	if err != nil {
		s.log.Error("failed to list orders",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	return orders, nil
}
