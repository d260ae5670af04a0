package domain

import "time"

// RawMessage 表示从邮件源拉取到的一封原始邮件。
// 管道内只读，不会被修改。
type RawMessage struct {
	MessageID  string    `json:"messageId"`
	ThreadID   string    `json:"threadId"`
	Subject    string    `json:"subject"`
	BodyText   string    `json:"bodyText"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// RelevantEmail 表示被判定为订单相关的邮件摘要。
// 仅在一次同步内存在，作为审计信息返回给调用方，不单独持久化。
type RelevantEmail struct {
	Subject    string    `json:"subject"`
	MessageID  string    `json:"messageId"`
	ReceivedAt time.Time `json:"receivedAt"`
}
