package domain

import (
	"fmt"
	"strings"
)

// OrderStatus 表示订单在生命周期中的当前状态。
type OrderStatus string

const (
	StatusOrdered        OrderStatus = "ordered"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusProcessing     OrderStatus = "processing"
	StatusPacked         OrderStatus = "packed"
	StatusShipped        OrderStatus = "shipped"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	// 终止状态：可从任意节点进入，彼此之间没有先后关系
	StatusCancelled     OrderStatus = "cancelled"
	StatusPaymentFailed OrderStatus = "payment_failed"
	StatusReturned      OrderStatus = "returned"
)

// lifecycleRank 定义正常生命周期的推进顺序。
// confirmed 与 processing 视为同一阶段。
// cancelled / payment_failed / returned 是终止状态，不参与排序。
var lifecycleRank = map[OrderStatus]int{
	StatusOrdered:        1,
	StatusConfirmed:      2,
	StatusProcessing:     2,
	StatusPacked:         3,
	StatusShipped:        4,
	StatusOutForDelivery: 5,
	StatusDelivered:      6,
}

// ParseOrderStatus 校验并解析订单状态字符串，大小写与首尾空白不敏感。
func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusOrdered, StatusConfirmed, StatusProcessing, StatusPacked,
		StatusShipped, StatusOutForDelivery, StatusDelivered,
		StatusCancelled, StatusPaymentFailed, StatusReturned:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", value)
}

// LifecycleRank 返回状态在生命周期中的序号。
// 终止状态没有序号，第二个返回值为 false。
func (s OrderStatus) LifecycleRank() (int, bool) {
	rank, ok := lifecycleRank[s]
	return rank, ok
}

// IsTerminal 判断状态是否为终止状态。
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusPaymentFailed, StatusReturned:
		return true
	}
	return false
}

// MoreAdvanced 判断 a 是否在生命周期中严格晚于 b。
// 任意一方为终止状态时无法比较，返回 false（只按时间戳判定新旧）。
func MoreAdvanced(a, b OrderStatus) bool {
	rankA, okA := a.LifecycleRank()
	rankB, okB := b.LifecycleRank()
	if !okA || !okB {
		return false
	}
	return rankA > rankB
}

// ReturnStatus 表示退货流程的状态。
type ReturnStatus string

const (
	ReturnInitiated       ReturnStatus = "initiated"
	ReturnLabelCreated    ReturnStatus = "return_label_created"
	ReturnPickupScheduled ReturnStatus = "pickup_scheduled"
	ReturnInTransit       ReturnStatus = "in_transit"
	ReturnPickedUp        ReturnStatus = "picked_up"
	ReturnReceived        ReturnStatus = "received"
	ReturnRefunded        ReturnStatus = "refunded"
)

// ParseReturnStatus 校验并解析退货状态字符串，大小写与首尾空白不敏感。
func ParseReturnStatus(value string) (ReturnStatus, error) {
	status := ReturnStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case ReturnInitiated, ReturnLabelCreated, ReturnPickupScheduled,
		ReturnInTransit, ReturnPickedUp, ReturnReceived, ReturnRefunded:
		return status, nil
	}
	return "", fmt.Errorf("unknown return status %q", value)
}
