package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const classifySystemPrompt = `You are an expert at identifying e-commerce and order-related emails.

Analyze each email to determine if it's related to:
1. Order confirmations/receipts
2. Shipping notifications
3. Delivery updates
4. Order status changes
5. Return/refund processes
6. Order cancellations
7. Payment confirmations or payment failures for orders

Exclude:
- Marketing/promotional emails
- Newsletters
- Account notifications
- Password resets
- Wishlist notifications
- Shopping cart reminders

Respond with a JSON object where keys are 'email_X' (X = index number)
and values are boolean (true = order-related, false = not order-related).`

const extractSystemPrompt = `You are an expert at analyzing emails to extract order information.
Extract the following details in JSON format:
- orderId: The unique order/confirmation number assigned by the vendor (REQUIRED). This is different from transaction/payment IDs.
  * Do NOT use payment/transaction IDs (e.g. "TXN123", "PAY789", etc.)
  * If no clear order ID is found (only transaction ID exists), return "" STRING.
- vendor: Company name
- totalAmount: Purchase amount (number)
- currency: Currency code (e.g., USD, EUR, GBP)
- orderDate: When order was placed (ISO date string)
- latestStatus: Current order status (one of: ordered, confirmed, processing, packed, shipped, out_for_delivery, delivered, cancelled, payment_failed, returned)
- trackingUrl: Tracking link if available
- statusHistory: Array of status changes with status, timestamp and sourceMessageId
- return: Return information if applicable (initiatedDate, trackingUrl, status; status one of: initiated, return_label_created, pickup_scheduled, in_transit, picked_up, received, refunded)
- metadata: Additional useful details (itemCount, shippingCost, taxAmount, estimatedDelivery, paymentMethod)

If you can't find certain information, omit those fields.
If the email is not order-related, you can't extract meaningful information, or there is no order ID, return null.
For payment_failed status, still require a valid order ID to process the order.
Ensure all dates are in ISO format and amounts are numbers.`

// Config OpenAI 兼容接口的客户端配置
type Config struct {
	BaseURL           string        // 接口地址，默认 https://api.openai.com/v1
	APIKey            string        // 鉴权密钥
	Model             string        // 模型名称
	Timeout           time.Duration // 单次请求超时
	RequestsPerSecond float64       // 请求速率上限，0 表示不限速
}

// Client 通过 OpenAI 兼容的 chat-completions 接口实现 LanguageOracle。
// 内部使用令牌桶限速，可安全地被多个同步任务并发使用。
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient 创建语言模型客户端。
func NewClient(cfg Config, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		log:     log,
	}
}

// chatRequest chat-completions 请求体
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// chatResponse chat-completions 响应体
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify 判断一批邮件是否与订单相关。
func (c *Client) Classify(ctx context.Context, items []ClassifyItem) (map[int]bool, error) {
	userContent, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	content, err := c.complete(ctx, classifySystemPrompt, string(userContent))
	if err != nil {
		return nil, err
	}

	var verdicts map[string]bool
	if err := json.Unmarshal(content, &verdicts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	results := make(map[int]bool, len(items))
	for key, relevant := range verdicts {
		idx, ok := parseEmailKey(key)
		if !ok || idx < 0 || idx >= len(items) {
			continue
		}
		results[idx] = relevant
	}
	return results, nil
}

// Extract 从单封邮件抽取结构化订单 JSON。
func (c *Client) Extract(ctx context.Context, input ExtractInput) (json.RawMessage, error) {
	userContent, err := json.Marshal(map[string]any{
		"subject":   input.Subject,
		"body":      input.Body,
		"sender":    input.Sender,
		"timestamp": input.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	content, err := c.complete(ctx, extractSystemPrompt, string(userContent))
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	return json.RawMessage(trimmed), nil
}

// complete 执行一次 chat-completions 调用并返回首个回复内容。
func (c *Client) complete(ctx context.Context, systemPrompt, userContent string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
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
		return nil, fmt.Errorf("oracle status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(parsed.Choices[0].Message.Content), nil
}

// parseEmailKey 解析 "email_3" 形式的键名并返回下标。
func parseEmailKey(key string) (int, bool) {
	const prefix = "email_"
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	idx, err := strconv.Atoi(key[len(prefix):])
	if err != nil {
		return 0, false
	}
	return idx, true
}
