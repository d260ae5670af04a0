package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/mailsource"
	"ordersync/backend/internal/oracle"
)

// fakeOracle 确定性的语言模型假实现，可注入逐次调用的行为
type fakeOracle struct {
	mu            stdsync.Mutex
	classifyFunc  func(call int, items []oracle.ClassifyItem) (map[int]bool, error)
	extractFunc   func(call int, input oracle.ExtractInput) (json.RawMessage, error)
	classifyCalls int
	extractCalls  int
}

func (f *fakeOracle) Classify(_ context.Context, items []oracle.ClassifyItem) (map[int]bool, error) {
	f.mu.Lock()
	f.classifyCalls++
	call := f.classifyCalls
	f.mu.Unlock()
	return f.classifyFunc(call, items)
}

func (f *fakeOracle) Extract(_ context.Context, input oracle.ExtractInput) (json.RawMessage, error) {
	f.mu.Lock()
	f.extractCalls++
	call := f.extractCalls
	f.mu.Unlock()
	return f.extractFunc(call, input)
}

// fakeMailSource 返回固定邮件集合的邮件源
type fakeMailSource struct {
	messages []domain.RawMessage
	err      error
}

func (f *fakeMailSource) Search(_ context.Context, _ string, _ mailsource.Query) ([]domain.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

// testMessage 构造测试邮件
func testMessage(id, subject string, receivedAt time.Time) domain.RawMessage {
	return domain.RawMessage{
		MessageID:  id,
		Subject:    subject,
		BodyText:   "body of " + id,
		Sender:     "orders@shop.example.com",
		ReceivedAt: receivedAt,
	}
}

// extractionJSON 构造一条最小可用的抽取输出
func extractionJSON(orderID, status, receivedNote string) json.RawMessage {
	payload := map[string]any{
		"orderId":      orderID,
		"vendor":       "Example Shop",
		"totalAmount":  49.99,
		"currency":     "USD",
		"latestStatus": status,
	}
	if receivedNote != "" {
		payload["metadata"] = map[string]any{"note": receivedNote}
	}
	data, _ := json.Marshal(payload)
	return data
}
