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
// 認証ブリッジ・ハンドラー・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(division, result string)
	RecordMail(kind string, err error)
	RecordOutage(system string)
	RecordHTTPRequest(method string, status int, duration time.Duration)
}

// 障害の発生したシステムのラベル。
const (
	SystemDirectory = "directory"
	SystemDatabase  = "database"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins       *prometheus.CounterVec
	mails        *prometheus.CounterVec
	outages      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipa_login_attempts_total",
			Help: "ディビジョン・結果別のログイン試行数",
		}, []string{"division", "result"}),
		mails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipa_mail_sent_total",
			Help: "種別・結果別のメール送信数",
		}, []string{"kind", "result"}),
		outages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipa_backend_outage_total",
			Help: "外部システムへの接続失敗数",
		}, []string{"system"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipa_http_requests_total",
			Help: "メソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sipa_http_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.mails,
		c.outages,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(division, result string) {
	c.logins.WithLabelValues(division, result).Inc()
}

// RecordMail はメール送信の結果を記録する。
func (c *Collector) RecordMail(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.mails.WithLabelValues(kind, result).Inc()
}

// RecordOutage は外部システムの障害を記録する。
func (c *Collector) RecordOutage(system string) {
	c.outages.WithLabelValues(system).Inc()
}

// RecordHTTPRequest はリクエストのステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Noop は何も記録しないMetricsCollector。
type Noop struct{}

func (Noop) RecordLogin(string, string)                   {}
func (Noop) RecordMail(string, error)                     {}
func (Noop) RecordOutage(string)                          {}
func (Noop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
