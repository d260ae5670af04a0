package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/middleware"
	"ordersync/backend/internal/service"
)

// OrderHandler 订单查询处理器
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler 创建订单查询处理器
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type statusHistoryResponse struct {
	Status          domain.OrderStatus `json:"status"`
	Timestamp       time.Time          `json:"timestamp"`
	SourceMessageID string             `json:"sourceMessageId"`
}

type returnResponse struct {
	InitiatedDate *time.Time          `json:"initiatedDate,omitempty"`
	TrackingURL   string              `json:"trackingUrl,omitempty"`
	Status        domain.ReturnStatus `json:"status"`
}

type orderResponse struct {
	ID              string                  `json:"id"`
	OrderID         string                  `json:"orderId"`
	Vendor          string                  `json:"vendor"`
	TotalAmount     float64                 `json:"totalAmount"`
	Currency        string                  `json:"currency"`
	OrderDate       time.Time               `json:"orderDate"`
	LatestStatus    domain.OrderStatus      `json:"latestStatus"`
	TrackingURL     string                  `json:"trackingUrl,omitempty"`
	EmailReceivedAt time.Time               `json:"emailReceivedAt"`
	SenderAddress   string                  `json:"senderAddress"`
	Metadata        map[string]any          `json:"metadata,omitempty"`
	StatusHistory   []statusHistoryResponse `json:"statusHistory"`
	Return          *returnResponse         `json:"return,omitempty"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

type orderListResponse struct {
	Items []orderResponse `json:"items"`
	Count int             `json:"count"`
}

// listOrders 返回当前用户的全部订单
func (h *OrderHandler) listOrders(c *gin.Context) {
	userID, ok := middleware.UserIDFrom(c)
	if !ok {
		Unauthorized(c, "authentication required")
		return
	}

	orders, err := h.orders.ListOrders(userID)
	if err != nil {
		InternalError(c, MsgOrderListFailed)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toOrderResponse(&orders[i]))
	}

	Success(c, orderListResponse{
		Items: responses,
		Count: len(responses),
	})
}

// toOrderResponse 转换订单聚合为响应体
func toOrderResponse(order *domain.StoredOrder) orderResponse {
	history := make([]statusHistoryResponse, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, statusHistoryResponse{
			Status:          entry.Status,
			Timestamp:       entry.Timestamp,
			SourceMessageID: entry.SourceMessageID,
		})
	}

	var ret *returnResponse
	if order.Return != nil {
		ret = &returnResponse{
			InitiatedDate: order.Return.InitiatedDate,
			TrackingURL:   order.Return.TrackingURL,
			Status:        order.Return.Status,
		}
	}

	return orderResponse{
		ID:              order.ID,
		OrderID:         order.OrderID,
		Vendor:          order.Vendor,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		OrderDate:       order.OrderDate,
		LatestStatus:    order.LatestStatus,
		TrackingURL:     order.TrackingURL,
		EmailReceivedAt: order.EmailReceivedAt,
		SenderAddress:   order.SenderAddress,
		Metadata:        order.Metadata,
		StatusHistory:   history,
		Return:          ret,
		UpdatedAt:       order.UpdatedAt,
	}
}
