// Package metrics はゲートウェイのPrometheusメトリクスを提供する。
//
// 監査イベントを購読してカウンタを更新するSinkと、HTTPリクエストの
// レイテンシを記録するGinミドルウェアを含む。レジストリはサーバーごとに
// 生成し、グローバルなデフォルトレジストリは使用しない。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/llmgate/pkg/event"
)

const namespace = "llmgate"

const (
	// outcomeUnknownTool は未登録のツールが要求されたことを表すToolInvokedDataのOutcome。
	outcomeUnknownTool = "unknown_tool"
	// unknownToolLabel は未登録のツールをまとめて集計するときのtoolラベル。
	unknownToolLabel = "unknown"
)

// Metrics はゲートウェイが公開するメトリクス一式。
type Metrics struct {
	registry *prometheus.Registry

	// TokensIssued は発行したアクセストークン数（grant_type, role別）。
	TokensIssued *prometheus.CounterVec
	// GrantRejections は拒否したトークン発行要求数（error別）。
	GrantRejections *prometheus.CounterVec
	// AuthRejections はBearer認証の拒否数（reason別）。
	AuthRejections *prometheus.CounterVec
	// ToolInvocations はツール実行数（tool, outcome別）。
	ToolInvocations *prometheus.CounterVec
	// ToolLoopExhausted はツール呼び出し上限に達したリクエスト数。
	ToolLoopExhausted prometheus.Counter
	// RequestDuration はHTTPリクエストの処理時間。
	RequestDuration *prometheus.HistogramVec
}

// New は新しいレジストリにメトリクスを登録して返す。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Number of access tokens issued.",
		}, []string{"grant_type", "role"}),
		GrantRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_rejections_total",
			Help:      "Number of rejected token requests by OAuth error code.",
		}, []string{"error"}),
		AuthRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Number of rejected bearer-authenticated requests by reason.",
		}, []string{"reason"}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Number of model-requested tool invocations.",
		}, []string{"tool", "outcome"}),
		ToolLoopExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_loop_exhausted_total",
			Help:      "Number of chat requests that hit the tool-call ceiling.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.TokensIssued,
		m.GrantRejections,
		m.AuthRejections,
		m.ToolInvocations,
		m.ToolLoopExhausted,
		m.RequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler は/metrics用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Record はevent.Sinkを実装し、イベントの種類に応じてカウンタを更新する。
func (m *Metrics) Record(_ context.Context, e *event.Event) {
	switch e.EventType {
	case event.TypeTokenIssued:
		if d, err := event.DecodeData[event.TokenIssuedData](e); err == nil {
			m.TokensIssued.WithLabelValues(d.GrantType, d.Role).Inc()
		}
	case event.TypeGrantRejected:
		if d, err := event.DecodeData[event.GrantRejectedData](e); err == nil {
			m.GrantRejections.WithLabelValues(d.ErrorCode).Inc()
		}
	case event.TypeAuthRejected:
		if d, err := event.DecodeData[event.AuthRejectedData](e); err == nil {
			m.AuthRejections.WithLabelValues(d.Reason).Inc()
		}
	case event.TypeToolInvoked:
		if d, err := event.DecodeData[event.ToolInvokedData](e); err == nil {
			tool := d.Tool
			if d.Outcome == outcomeUnknownTool {
				// 未登録のツール名はモデルの出力そのものなので、ラベルに使わない。
				tool = unknownToolLabel
			}
			m.ToolInvocations.WithLabelValues(tool, d.Outcome).Inc()
		}
	case event.TypeToolLoopExhausted:
		m.ToolLoopExhausted.Inc()
	}
}

// Middleware はリクエストの処理時間を記録するGinミドルウェアを返す。
// ルートはパステンプレート（例: /:level/chat）で集計し、未登録パスは"unmatched"とする。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
