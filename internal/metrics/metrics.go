// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordSignup(accountType string)
	RecordWebhook(provider string, outcome string)
	RecordAnalysisLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordScopeReset(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    prometheus.Counter
	loginFail       prometheus.Counter
	signups         *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	analysisLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	scopeResets     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasteflow_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasteflow_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wasteflow_signup_total",
			Help: "アカウント種別ごとのサインアップ数",
		}, []string{"account_type"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wasteflow_webhook_total",
			Help: "決済プロバイダー・結果別のWebhook処理数",
		}, []string{"provider", "outcome"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wasteflow_analysis_latency_seconds",
			Help:    "AI分析リクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wasteflow_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		scopeResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasteflow_scope_reset_total",
			Help: "会社削除によりリセットされたセッション選択の合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.signups,
		c.webhooks,
		c.analysisLatency,
		c.httpStatus,
		c.scopeResets,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordSignup はサインアップを記録する。
func (c *Collector) RecordSignup(accountType string) {
	c.signups.WithLabelValues(accountType).Inc()
}

// RecordWebhook はWebhook処理結果を記録する。outcomeはapplied/rejected/duplicate。
func (c *Collector) RecordWebhook(provider string, outcome string) {
	c.webhooks.WithLabelValues(provider, outcome).Inc()
}

// RecordAnalysisLatency はAI分析のレイテンシを記録する。
func (c *Collector) RecordAnalysisLatency(duration time.Duration) {
	c.analysisLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordScopeReset は会社削除によるセッション選択のリセット数を記録する。
func (c *Collector) RecordScopeReset(count int) {
	c.scopeResets.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
