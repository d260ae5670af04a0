package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chatServer 构造一个固定返回 content 的 chat-completions 假服务。
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestClientClassify(t *testing.T) {
	t.Run("解析下标键名的判定结果", func(t *testing.T) {
		server := chatServer(t, `{"email_0": true, "email_1": false, "email_2": true}`)
		defer server.Close()
		client := testClient(server.URL)

		items := []ClassifyItem{
			{Subject: "Order shipped", Sender: "orders@shop.example.com"},
			{Subject: "Newsletter", Sender: "news@shop.example.com"},
			{Subject: "Order confirmed", Sender: "orders@shop.example.com"},
		}
		verdicts, err := client.Classify(context.Background(), items)
		require.NoError(t, err)
		assert.True(t, verdicts[0])
		assert.False(t, verdicts[1])
		assert.True(t, verdicts[2])
	})

	t.Run("越界与畸形键名被忽略", func(t *testing.T) {
		server := chatServer(t, `{"email_0": true, "email_99": true, "bogus": true}`)
		defer server.Close()
		client := testClient(server.URL)

		verdicts, err := client.Classify(context.Background(), []ClassifyItem{
			{Subject: "Order shipped"},
		})
		require.NoError(t, err)
		assert.Len(t, verdicts, 1)
		assert.True(t, verdicts[0])
	})

	t.Run("非JSON内容返回畸形错误", func(t *testing.T) {
		server := chatServer(t, `sure, here is the result`)
		defer server.Close()
		client := testClient(server.URL)

		_, err := client.Classify(context.Background(), []ClassifyItem{{Subject: "x"}})
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("非200状态码返回错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()
		client := testClient(server.URL)

		_, err := client.Classify(context.Background(), []ClassifyItem{{Subject: "x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("空choices返回空响应错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer server.Close()
		client := testClient(server.URL)

		_, err := client.Classify(context.Background(), []ClassifyItem{{Subject: "x"}})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestClientExtract(t *testing.T) {
	input := ExtractInput{
		Subject:   "Your order has shipped",
		Body:      "Order ORD-1 is on the way",
		Sender:    "orders@shop.example.com",
		Timestamp: time.Date(2026, 8, 19, 14, 0, 0, 0, time.UTC),
	}

	t.Run("返回模型给出的订单JSON", func(t *testing.T) {
		server := chatServer(t, `{"orderId": "ORD-1", "latestStatus": "shipped"}`)
		defer server.Close()
		client := testClient(server.URL)

		raw, err := client.Extract(context.Background(), input)
		require.NoError(t, err)

		var parsed map[string]any
		require.NoError(t, json.Unmarshal(raw, &parsed))
		assert.Equal(t, "ORD-1", parsed["orderId"])
	})

	t.Run("模型返回null表示无关邮件", func(t *testing.T) {
		server := chatServer(t, ` null `)
		defer server.Close()
		client := testClient(server.URL)

		raw, err := client.Extract(context.Background(), input)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("上下文取消时中止请求", func(t *testing.T) {
		server := chatServer(t, `{}`)
		defer server.Close()
		client := testClient(server.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.Extract(ctx, input)
		assert.Error(t, err)
	})
}
