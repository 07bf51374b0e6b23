// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はログインワークフローのメトリクスを収集する。
// IdP到達不可はユーザー向けレスポンスでは認証失敗と区別しないが、
// 運用者が障害を検知できるようメトリクスでは独立したカウンタで記録する。
type Collector struct {
	loginAttempts    prometheus.Counter
	loginSuccess     prometheus.Counter
	loginFailures    *prometheus.CounterVec
	providerOutage   prometheus.Counter
	providerLatency  prometheus.Histogram
	usersProvisioned prometheus.Counter
	notifySuccess    prometheus.Counter
	notifyFailure    prometheus.Counter
	notifyDropped    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_login_attempts_total",
			Help: "ログイン試行の合計数",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authbridge_login_failures_total",
			Help: "ログイン失敗の理由別合計数",
		}, []string{"reason"}),
		providerOutage: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_provider_outage_total",
			Help: "IdP到達失敗の合計数（認証拒否とは別に記録）",
		}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authbridge_provider_latency_seconds",
			Help:    "IdP認証呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		usersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_users_provisioned_total",
			Help: "遅延作成されたローカルユーザーの合計数",
		}),
		notifySuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_notify_success_total",
			Help: "通知ディスパッチ成功の合計数",
		}),
		notifyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_notify_failure_total",
			Help: "通知ディスパッチ失敗（リトライ上限到達）の合計数",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authbridge_notify_dropped_total",
			Help: "キュー満杯により破棄された通知イベントの合計数",
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.loginSuccess,
		c.loginFailures,
		c.providerOutage,
		c.providerLatency,
		c.usersProvisioned,
		c.notifySuccess,
		c.notifyFailure,
		c.notifyDropped,
	)

	return c
}

// RecordLoginAttempt はログイン試行を記録する。
func (c *Collector) RecordLoginAttempt() {
	c.loginAttempts.Inc()
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を理由付きで記録する。
// reason: validation, unauthorized, disabled, unavailable
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailures.WithLabelValues(reason).Inc()
}

// RecordProviderOutage はIdP到達失敗を記録する。
func (c *Collector) RecordProviderOutage() {
	c.providerOutage.Inc()
}

// RecordProviderLatency はIdP認証呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordUserProvisioned はローカルユーザーの遅延作成を記録する。
func (c *Collector) RecordUserProvisioned() {
	c.usersProvisioned.Inc()
}

// RecordNotifySuccess は通知ディスパッチ成功を記録する。
func (c *Collector) RecordNotifySuccess() {
	c.notifySuccess.Inc()
}

// RecordNotifyFailure は通知ディスパッチ失敗を記録する。
func (c *Collector) RecordNotifyFailure() {
	c.notifyFailure.Inc()
}

// RecordNotifyDropped はキュー満杯による通知イベント破棄を記録する。
func (c *Collector) RecordNotifyDropped() {
	c.notifyDropped.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
