// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics はチャット関連メトリクス収集のインターフェース。
// WebSocket層およびハンドラー層から利用する。
type ChatMetrics interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordAuthSuccess()
	RecordAuthFailure()
	RecordMessageCreated()
	RecordBroadcast(recipients int)
	RecordBroadcastLatency(duration time.Duration)
	RecordSlowClientEviction()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	activeConnections  prometheus.Gauge
	authSuccess        prometheus.Counter
	authFail           prometheus.Counter
	messagesCreated    prometheus.Counter
	broadcastRecipient prometheus.Counter
	broadcastLatency   prometheus.Histogram
	slowClientEvicted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "minichat_active_connections",
			Help: "現在アクティブなWebSocket接続数",
		}),
		authSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minichat_auth_success_total",
			Help: "認証成功の合計数",
		}),
		authFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minichat_auth_fail_total",
			Help: "認証失敗の合計数",
		}),
		messagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minichat_messages_created_total",
			Help: "永続化されたメッセージの合計数",
		}),
		broadcastRecipient: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minichat_broadcast_recipients_total",
			Help: "ブロードキャストで配信されたイベントの合計数",
		}),
		broadcastLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "minichat_broadcast_latency_seconds",
			Help:    "ブロードキャスト1回あたりのファンアウト所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		slowClientEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minichat_slow_client_evicted_total",
			Help: "送信バッファ満杯により切断されたクライアントの合計数",
		}),
	}

	reg.MustRegister(
		c.activeConnections,
		c.authSuccess,
		c.authFail,
		c.messagesCreated,
		c.broadcastRecipient,
		c.broadcastLatency,
		c.slowClientEvicted,
	)

	return c
}

// RecordConnectionOpened は接続確立を記録する。
func (c *Collector) RecordConnectionOpened() {
	c.activeConnections.Inc()
}

// RecordConnectionClosed は接続切断を記録する。
func (c *Collector) RecordConnectionClosed() {
	c.activeConnections.Dec()
}

// RecordAuthSuccess は認証成功を記録する。
func (c *Collector) RecordAuthSuccess() {
	c.authSuccess.Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFail.Inc()
}

// RecordMessageCreated はメッセージ永続化を記録する。
func (c *Collector) RecordMessageCreated() {
	c.messagesCreated.Inc()
}

// RecordBroadcast はブロードキャストの配信先数を記録する。
func (c *Collector) RecordBroadcast(recipients int) {
	c.broadcastRecipient.Add(float64(recipients))
}

// RecordBroadcastLatency はファンアウトの所要時間を記録する。
func (c *Collector) RecordBroadcastLatency(duration time.Duration) {
	c.broadcastLatency.Observe(duration.Seconds())
}

// RecordSlowClientEviction は低速クライアントの切断を記録する。
func (c *Collector) RecordSlowClientEviction() {
	c.slowClientEvicted.Inc()
}

// compile-time interface check
var _ ChatMetrics = (*Collector)(nil)
