package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/oracle"
)

// ErrNoUsableRecord 表示模型输出中没有可用的订单记录（语义拒绝，不重试）。
var ErrNoUsableRecord = errors.New("no usable order record")

// ExtractorConfig 抽取器配置
type ExtractorConfig struct {
	MaxRetries      int           // 瞬时失败的最大尝试次数
	RetryBase       time.Duration // 线性退避的基础间隔
	GroupSize       int           // 并发抽取的分组大小
	GroupPause      time.Duration // 组间停顿，用于尊重模型接口限速
	DefaultCurrency string        // 模型未给出货币时的回退代码
}

// Extractor 对每封相关邮件调用语言模型做结构化抽取。
// 模型输出在此边界立即按严格模式校验并转换为类型化记录，
// 任何模式违例都走"无可用记录"路径，而不是作为类型化值继续传播。
type Extractor struct {
	oracle oracle.LanguageOracle
	cfg    ExtractorConfig
	log    *zap.Logger
}

// NewExtractor 创建订单抽取器。
func NewExtractor(o oracle.LanguageOracle, cfg ExtractorConfig, log *zap.Logger) *Extractor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.GroupSize < 1 {
		cfg.GroupSize = 3
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &Extractor{
		oracle: o,
		cfg:    cfg,
		log:    log,
	}
}

// ExtractBatch 按固定大小分组并发抽取，组间停顿；组间顺序保持，
// 保证下游去重的先到先得判定是确定性的。
// 单封邮件抽取失败只跳过该邮件，不中断整个批次。
func (e *Extractor) ExtractBatch(ctx context.Context, messages []domain.RawMessage) ([]domain.ExtractedOrder, int) {
	results := make([]*domain.ExtractedOrder, len(messages))

	for start := 0; start < len(messages); start += e.cfg.GroupSize {
		end := start + e.cfg.GroupSize
		if end > len(messages) {
			end = len(messages)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			idx := i
			group.Go(func() error {
				order, err := e.extractOne(groupCtx, messages[idx])
				if err != nil {
					// 单封失败不影响同组其他邮件
					e.log.Warn("message skipped after extraction failure",
						zap.String("message_id", messages[idx].MessageID),
						zap.Error(err),
					)
					return nil
				}
				results[idx] = order
				return nil
			})
		}
		// goroutine 均返回 nil，这里只等待收尾
		_ = group.Wait()

		// 组间停顿，最后一组之后不停
		if end < len(messages) && e.cfg.GroupPause > 0 {
			timer := time.NewTimer(e.cfg.GroupPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				partial := collectExtracted(results)
				return partial, len(messages) - len(partial)
			case <-timer.C:
			}
		}
	}

	extracted := collectExtracted(results)
	skipped := len(messages) - len(extracted)

	e.log.Info("extraction completed",
		zap.Int("messages", len(messages)),
		zap.Int("extracted", len(extracted)),
		zap.Int("skipped", skipped),
	)
	return extracted, skipped
}

// extractOne 抽取单封邮件。
// 瞬时失败（网络、超时、畸形响应）按线性退避重试；
// 语义拒绝（无 orderId、日期不可解析）不重试，直接返回 ErrNoUsableRecord。
func (e *Extractor) extractOne(ctx context.Context, msg domain.RawMessage) (*domain.ExtractedOrder, error) {
	var raw json.RawMessage
	err := retryLinear(ctx, e.cfg.MaxRetries, e.cfg.RetryBase, func() error {
		result, callErr := e.oracle.Extract(ctx, oracle.ExtractInput{
			Subject:   msg.Subject,
			Body:      msg.BodyText,
			Sender:    msg.Sender,
			Timestamp: msg.ReceivedAt,
		})
		if callErr != nil {
			e.log.Warn("extraction call failed, will retry",
				zap.String("message_id", msg.MessageID),
				zap.Error(callErr),
			)
			return callErr
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract message: %w", err)
	}

	if raw == nil {
		// 模型判定邮件与订单无关
		e.log.Debug("message not order-related",
			zap.String("message_id", msg.MessageID),
			zap.String("subject", msg.Subject),
		)
		return nil, ErrNoUsableRecord
	}
	return e.validate(raw, msg)
}

// rawExtraction 模型输出的宽松表示，字段在校验后才进入类型化记录。
type rawExtraction struct {
	OrderID       string            `json:"orderId"`
	Vendor        string            `json:"vendor"`
	TotalAmount   any               `json:"totalAmount"`
	Currency      string            `json:"currency"`
	OrderDate     string            `json:"orderDate"`
	LatestStatus  string            `json:"latestStatus"`
	TrackingURL   string            `json:"trackingUrl"`
	StatusHistory []rawHistoryEntry `json:"statusHistory"`
	Return        *rawReturnInfo    `json:"return"`
	Metadata      map[string]any    `json:"metadata"`
}

type rawHistoryEntry struct {
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	SourceMessageID string `json:"sourceMessageId"`
}

type rawReturnInfo struct {
	InitiatedDate string `json:"initiatedDate"`
	TrackingURL   string `json:"trackingUrl"`
	Status        string `json:"status"`
}

// validate 在抽取边界校验模型输出并转换为类型化的 ExtractedOrder。
func (e *Extractor) validate(raw json.RawMessage, msg domain.RawMessage) (*domain.ExtractedOrder, error) {
	var parsed rawExtraction
	if err := json.Unmarshal(raw, &parsed); err != nil {
		// 整体结构不符合约定，按语义拒绝处理
		e.log.Info("extraction output rejected: not an object",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return nil, ErrNoUsableRecord
	}

	// orderId 必须非空：缺失意味着这不是一封真正的订单邮件
	if parsed.OrderID == "" {
		e.log.Info("extraction output rejected: missing order id",
			zap.String("message_id", msg.MessageID),
			zap.String("subject", msg.Subject),
		)
		return nil, ErrNoUsableRecord
	}

	status, err := domain.ParseOrderStatus(parsed.LatestStatus)
	if err != nil {
		e.log.Info("extraction output rejected: invalid status",
			zap.String("message_id", msg.MessageID),
			zap.String("status", parsed.LatestStatus),
		)
		return nil, ErrNoUsableRecord
	}

	amount, err := domain.ParseAmount(parsed.TotalAmount)
	if err != nil {
		e.log.Info("extraction output rejected: invalid amount",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return nil, ErrNoUsableRecord
	}

	// 下单时间缺失时回退到邮件接收时间；给出但不可解析则拒绝，
	// 问题出在输入本身，重试没有意义
	orderDate := msg.ReceivedAt
	if parsed.OrderDate != "" {
		orderDate, err = domain.ParseTimestamp(parsed.OrderDate)
		if err != nil {
			e.log.Info("extraction output rejected: unparseable order date",
				zap.String("message_id", msg.MessageID),
				zap.String("order_date", parsed.OrderDate),
			)
			return nil, ErrNoUsableRecord
		}
	}

	order := &domain.ExtractedOrder{
		OrderID:         parsed.OrderID,
		Vendor:          parsed.Vendor,
		TotalAmount:     amount,
		Currency:        domain.NormalizeCurrency(parsed.Currency, e.cfg.DefaultCurrency),
		OrderDate:       orderDate,
		LatestStatus:    status,
		Metadata:        parsed.Metadata,
		EmailReceivedAt: msg.ReceivedAt,
		SenderAddress:   msg.Sender,
	}

	// 追踪链接必须是合法的绝对 URL，否则丢弃该字段但保留记录
	if parsed.TrackingURL != "" {
		if err := domain.ValidateTrackingURL(parsed.TrackingURL); err == nil {
			order.TrackingURL = parsed.TrackingURL
		} else {
			e.log.Debug("tracking url dropped",
				zap.String("message_id", msg.MessageID),
				zap.String("tracking_url", parsed.TrackingURL),
			)
		}
	}

	// 历史记录逐条校验，坏条目跳过
	for _, entry := range parsed.StatusHistory {
		entryStatus, err := domain.ParseOrderStatus(entry.Status)
		if err != nil {
			continue
		}
		ts, err := domain.ParseTimestamp(entry.Timestamp)
		if err != nil {
			continue
		}
		sourceID := entry.SourceMessageID
		if sourceID == "" {
			sourceID = msg.MessageID
		}
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			ID:              uuid.NewString(),
			Status:          entryStatus,
			Timestamp:       ts,
			SourceMessageID: sourceID,
		})
	}

	if parsed.Return != nil {
		if retStatus, err := domain.ParseReturnStatus(parsed.Return.Status); err == nil {
			ret := &domain.ReturnInfo{Status: retStatus}
			if parsed.Return.InitiatedDate != "" {
				if initiated, err := domain.ParseTimestamp(parsed.Return.InitiatedDate); err == nil {
					ret.InitiatedDate = &initiated
				}
			}
			if parsed.Return.TrackingURL != "" {
				if err := domain.ValidateTrackingURL(parsed.Return.TrackingURL); err == nil {
					ret.TrackingURL = parsed.Return.TrackingURL
				}
			}
			order.Return = ret
		}
	}

	e.log.Info("order extracted",
		zap.String("message_id", msg.MessageID),
		zap.String("order_id", order.OrderID),
		zap.String("vendor", order.Vendor),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

// collectExtracted 压缩结果切片，保持原有顺序。
func collectExtracted(results []*domain.ExtractedOrder) []domain.ExtractedOrder {
	orders := make([]domain.ExtractedOrder, 0, len(results))
	for _, r := range results {
		if r != nil {
			orders = append(orders, *r)
		}
	}
	return orders
}
