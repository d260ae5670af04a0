package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrEmptyResponse 模型返回了空内容
	ErrEmptyResponse = errors.New("empty response from oracle")
	// ErrMalformedResponse 模型返回的内容无法解析
	ErrMalformedResponse = errors.New("malformed response from oracle")
)

// ClassifyItem 是分类请求中的一封邮件摘要。
type ClassifyItem struct {
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
}

// ExtractInput 是抽取请求的输入。
type ExtractInput struct {
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// LanguageOracle 封装语言模型的分类与抽取能力。
// 实现必须支持并发调用。模型输出是概率性的、偶尔畸形的，
// 调用方负责重试与输出校验。
type LanguageOracle interface {
	// Classify 判断一批邮件是否与订单相关，按输入下标返回布尔结果。
	Classify(ctx context.Context, items []ClassifyItem) (map[int]bool, error)
	// Extract 从单封邮件抽取结构化订单 JSON。
	// 模型判定邮件与订单无关时返回 nil，不视为错误。
	Extract(ctx context.Context, input ExtractInput) (json.RawMessage, error)
}
