package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 同步指标
	SyncPassesTotal  *prometheus.CounterVec
	SyncPassDuration prometheus.Histogram
	MessagesSeen     prometheus.Counter
	MessagesRelevant prometheus.Counter
	OrdersExtracted  prometheus.Counter
	OrdersStored     prometheus.Counter

	// 模型调用指标
	OracleRequestsTotal *prometheus.CounterVec
	OracleRetriesTotal  prometheus.Counter

	// 错误指标
	ReconcileErrorsTotal prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ordersync_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SyncPassesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_sync_passes_total",
				Help: "Total number of sync passes by outcome",
			},
			[]string{"outcome"},
		),

		SyncPassDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ordersync_sync_pass_duration_seconds",
				Help:    "Sync pass duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),

		MessagesSeen: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_messages_seen_total",
				Help: "Total number of raw messages fetched from the mail source",
			},
		),

		MessagesRelevant: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_messages_relevant_total",
				Help: "Total number of messages classified as order-related",
			},
		),

		OrdersExtracted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_orders_extracted_total",
				Help: "Total number of structured orders extracted",
			},
		),

		OrdersStored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_orders_stored_total",
				Help: "Total number of orders inserted or updated in the store",
			},
		),

		OracleRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_oracle_requests_total",
				Help: "Total number of language oracle calls",
			},
			[]string{"operation", "outcome"},
		),

		OracleRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_oracle_retries_total",
				Help: "Total number of oracle call retries",
			},
		),

		ReconcileErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_reconcile_errors_total",
				Help: "Total number of per-order reconciliation errors",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_errors_total",
				Help: "Total number of errors by type and component",
			},
			[]string{"type", "component"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSyncPass 记录一次同步的结果指标
func (m *Metrics) RecordSyncPass(outcome string, duration time.Duration, seen, relevant, extracted, stored int) {
	if m == nil {
		return
	}
	m.SyncPassesTotal.WithLabelValues(outcome).Inc()
	m.SyncPassDuration.Observe(duration.Seconds())
	m.MessagesSeen.Add(float64(seen))
	m.MessagesRelevant.Add(float64(relevant))
	m.OrdersExtracted.Add(float64(extracted))
	m.OrdersStored.Add(float64(stored))
}

// RecordReconcileErrors 记录调和错误数
func (m *Metrics) RecordReconcileErrors(count int) {
	if m == nil || count == 0 {
		return
	}
	m.ReconcileErrorsTotal.Add(float64(count))
}

// RecordError 记录错误指标
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// HTTPHandler 返回 Prometheus 指标处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
