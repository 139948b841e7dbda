// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ユーザー単位の処理結果ラベル。
const (
	OutcomeDelivered = "delivered"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDryRun    = "dry_run"
)

// バッチ実行モードラベル。
const (
	ModeLive = "live"
	ModeTest = "test"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バッチジョブや配信クライアントから利用する。
type MetricsCollector interface {
	RecordRun(mode string, duration time.Duration)
	RecordUserOutcome(status string)
	RecordArticlesIncluded(count int)
	RecordLedgerWriteFailure()
	RecordDeliveryStatus(statusCode int)
	RecordDeliveryLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	runs                *prometheus.CounterVec
	runDuration         prometheus.Histogram
	userOutcomes        *prometheus.CounterVec
	articlesIncluded    prometheus.Counter
	ledgerWriteFailures prometheus.Counter
	deliveryStatus      *prometheus.CounterVec
	deliveryLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdigest_runs_total",
			Help: "ダイジェストバッチ実行の合計数",
		}, []string{"mode"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salesdigest_run_duration_seconds",
			Help:    "ダイジェストバッチ1回の実行時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		userOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdigest_user_outcomes_total",
			Help: "ユーザー単位の処理結果の合計数",
		}, []string{"status"}),
		articlesIncluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salesdigest_articles_included_total",
			Help: "配信したダイジェストに含まれた記事の合計数",
		}),
		ledgerWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salesdigest_ledger_write_failures_total",
			Help: "配信後の台帳記録失敗の合計数",
		}),
		deliveryStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salesdigest_delivery_http_status_total",
			Help: "配信Webhookのステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "salesdigest_delivery_latency_seconds",
			Help:    "配信Webhook呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.userOutcomes,
		c.articlesIncluded,
		c.ledgerWriteFailures,
		c.deliveryStatus,
		c.deliveryLatency,
	)

	return c
}

// RecordRun はバッチ実行1回分を記録する。
func (c *Collector) RecordRun(mode string, duration time.Duration) {
	c.runs.WithLabelValues(mode).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordUserOutcome はユーザー単位の処理結果を記録する。
func (c *Collector) RecordUserOutcome(status string) {
	c.userOutcomes.WithLabelValues(status).Inc()
}

// RecordArticlesIncluded は配信した記事数を記録する。
func (c *Collector) RecordArticlesIncluded(count int) {
	c.articlesIncluded.Add(float64(count))
}

// RecordLedgerWriteFailure は台帳記録の失敗を記録する。
func (c *Collector) RecordLedgerWriteFailure() {
	c.ledgerWriteFailures.Inc()
}

// RecordDeliveryStatus は配信WebhookのHTTPステータスコードを記録する。
func (c *Collector) RecordDeliveryStatus(statusCode int) {
	c.deliveryStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDeliveryLatency は配信Webhook呼び出しのレイテンシを記録する。
func (c *Collector) RecordDeliveryLatency(duration time.Duration) {
	c.deliveryLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordRun(string, time.Duration)     {}
func (NopCollector) RecordUserOutcome(string)            {}
func (NopCollector) RecordArticlesIncluded(int)          {}
func (NopCollector) RecordLedgerWriteFailure()           {}
func (NopCollector) RecordDeliveryStatus(int)            {}
func (NopCollector) RecordDeliveryLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
