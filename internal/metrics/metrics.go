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
// ハンドラーやミドルウェアから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordRateLimitRejection(scope string)
	RecordUserProvisioned(role string)
	RecordResetRequested()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
	loginSuccess     prometheus.Counter
	loginFailure     prometheus.Counter
	rateLimitReject  *prometheus.CounterVec
	usersProvisioned *prometheus.CounterVec
	resetRequests    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantry_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenantry_request_latency_seconds",
			Help:    "リクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantry_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantry_login_failure_total",
			Help: "ログイン失敗の合計数",
		}),
		rateLimitReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantry_rate_limit_reject_total",
			Help: "レート制限で拒否したリクエストのスコープ別合計数",
		}, []string{"scope"}),
		usersProvisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantry_users_provisioned_total",
			Help: "作成されたユーザーのロール別合計数",
		}, []string{"role"}),
		resetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantry_reset_requests_total",
			Help: "パスワードリセット要求の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.loginSuccess,
		c.loginFailure,
		c.rateLimitReject,
		c.usersProvisioned,
		c.resetRequests,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailure.Inc()
}

// RecordRateLimitRejection はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimitRejection(scope string) {
	c.rateLimitReject.WithLabelValues(scope).Inc()
}

// RecordUserProvisioned はユーザー作成を記録する。
func (c *Collector) RecordUserProvisioned(role string) {
	c.usersProvisioned.WithLabelValues(role).Inc()
}

// RecordResetRequested はパスワードリセット要求を記録する。
func (c *Collector) RecordResetRequested() {
	c.resetRequests.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
