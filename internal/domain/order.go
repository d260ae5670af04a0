package domain

import "time"

// StatusHistoryEntry 表示订单状态历史中的一条记录。
type StatusHistoryEntry struct {
	ID              string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StoredOrderID   string      `json:"-" gorm:"type:varchar(36);index;not null"`
	Status          OrderStatus `json:"status" gorm:"type:varchar(32)"`
	Timestamp       time.Time   `json:"timestamp"`
	SourceMessageID string      `json:"sourceMessageId" gorm:"type:varchar(255)"`
}

// ReturnInfo 表示订单的退货子记录。
// 退货信息整体覆盖写入（upsert），不做字段级合并。
type ReturnInfo struct {
	StoredOrderID string       `json:"-" gorm:"primaryKey;type:varchar(36)"`
	InitiatedDate *time.Time   `json:"initiatedDate,omitempty"`
	TrackingURL   string       `json:"trackingUrl,omitempty" gorm:"type:varchar(2048)"`
	Status        ReturnStatus `json:"status" gorm:"type:varchar(32)"`
}

// ExtractedOrder 是语言模型从单封邮件中抽取出的结构化订单记录。
// 由抽取器创建，经去重后被调和器消费，本身不持久化。
type ExtractedOrder struct {
	OrderID         string               `json:"orderId"`
	Vendor          string               `json:"vendor"`
	TotalAmount     float64              `json:"totalAmount"`
	Currency        string               `json:"currency"`
	OrderDate       time.Time            `json:"orderDate"`
	LatestStatus    OrderStatus          `json:"latestStatus"`
	TrackingURL     string               `json:"trackingUrl,omitempty"`
	StatusHistory   []StatusHistoryEntry `json:"statusHistory,omitempty"`
	Return          *ReturnInfo          `json:"return,omitempty"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
	EmailReceivedAt time.Time            `json:"emailReceivedAt"`
	SenderAddress   string               `json:"senderAddress"`
}

// StoredOrder 是按 (userID, orderID) 唯一的持久化订单聚合。
// 首次见到某个 orderID 时创建，之后由调和器按新旧策略原地更新，本管道不删除。
type StoredOrder struct {
	ID              string               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string               `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_user_order;not null"`
	OrderID         string               `json:"orderId" gorm:"type:varchar(128);uniqueIndex:idx_user_order;not null"`
	Vendor          string               `json:"vendor" gorm:"type:varchar(255)"`
	TotalAmount     float64              `json:"totalAmount"`
	Currency        string               `json:"currency" gorm:"type:varchar(8)"`
	OrderDate       time.Time            `json:"orderDate"`
	LatestStatus    OrderStatus          `json:"latestStatus" gorm:"type:varchar(32);index"`
	TrackingURL     string               `json:"trackingUrl,omitempty" gorm:"type:varchar(2048)"`
	EmailReceivedAt time.Time            `json:"emailReceivedAt"`
	SenderAddress   string               `json:"senderAddress" gorm:"type:varchar(255)"`
	Metadata        map[string]any       `json:"metadata,omitempty" gorm:"serializer:json"`
	StatusHistory   []StatusHistoryEntry `json:"statusHistory,omitempty" gorm:"foreignKey:StoredOrderID"`
	Return          *ReturnInfo          `json:"return,omitempty" gorm:"foreignKey:StoredOrderID"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// OrderError 记录单个订单在处理过程中遇到的错误。
type OrderError struct {
	OrderID string `json:"orderId"`
	Message string `json:"error"`
}

// SyncSummary 汇总一次同步的结果。
// 部分订单失败不影响其余订单，错误逐条列出。
type SyncSummary struct {
	UserID             string          `json:"userId"`
	MessagesSeen       int             `json:"messagesSeen"`
	Relevant           int             `json:"relevant"`
	Extracted          int             `json:"extracted"`
	Deduplicated       int             `json:"deduplicated"`
	Stored             int             `json:"stored"`
	RelevantEmails     []RelevantEmail `json:"relevantEmails"`
	Errors             []OrderError    `json:"errors"`
	CheckpointAdvanced bool            `json:"checkpointAdvanced"`
	StartedAt          time.Time       `json:"startedAt"`
	CompletedAt        time.Time       `json:"completedAt"`
}
