package mailsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ordersync/backend/internal/domain"
)

// ProviderClient 通过邮箱服务商的检索 API 拉取邮件。
// 服务商负责 OAuth 授权与分页，这里只消费检索结果。
type ProviderClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewProviderClient 创建邮件服务商客户端。
func NewProviderClient(baseURL, apiKey string, timeout time.Duration) *ProviderClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProviderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// searchRequest 检索请求体
type searchRequest struct {
	UserID    string `json:"userId"`
	Query     string `json:"query"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// searchResponse 检索响应体
type searchResponse struct {
	Messages []struct {
		MessageID string `json:"messageId"`
		ThreadID  string `json:"threadId"`
		Subject   string `json:"subject"`
		Body      string `json:"messageText"`
		Sender    string `json:"sender"`
		Timestamp string `json:"messageTimestamp"`
	} `json:"messages"`
}

// Search 在给定时间窗口内按主题关键词检索邮件。
func (c *ProviderClient) Search(ctx context.Context, userID string, query Query) ([]domain.RawMessage, error) {
	reqBody := searchRequest{
		UserID:    userID,
		Query:     buildSubjectQuery(query.Keywords),
		StartDate: query.Start.UTC().Format(time.RFC3339),
		EndDate:   query.End.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mail source status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode mail source response: %w", err)
	}

	messages := make([]domain.RawMessage, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		receivedAt, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			// 服务商偶尔返回毫秒时间戳之外的格式，跳过无法解析的记录
			continue
		}
		messages = append(messages, domain.RawMessage{
			MessageID:  m.MessageID,
			ThreadID:   m.ThreadID,
			Subject:    m.Subject,
			BodyText:   m.Body,
			Sender:     m.Sender,
			ReceivedAt: receivedAt.UTC(),
		})
	}
	return messages, nil
}

// buildSubjectQuery 将关键词拼成服务商的主题检索语法。
func buildSubjectQuery(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		quoted = append(quoted, fmt.Sprintf("%q", kw))
	}
	return fmt.Sprintf("subject:(%s)", strings.Join(quoted, " OR "))
}
