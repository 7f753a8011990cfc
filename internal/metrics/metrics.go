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
// カレンダーアダプタ、会議サービス、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
	RecordCacheInvalidation(resource string)
	ObserveProviderCall(op string, duration time.Duration, err error)
	RecordMeetingAction(action string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
	meetingActions     *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_cache_hits_total",
			Help: "カレンダーキャッシュのヒット数",
		}, []string{"resource"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_cache_misses_total",
			Help: "カレンダーキャッシュのミス数",
		}, []string{"resource"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_cache_invalidations_total",
			Help: "書き込みによるキャッシュ無効化の回数",
		}, []string{"resource"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_provider_calls_total",
			Help: "カレンダープロバイダ呼び出しの合計数",
		}, []string{"op", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomcal_provider_latency_seconds",
			Help:    "カレンダープロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		meetingActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_meeting_actions_total",
			Help: "デバイスからの会議操作の合計数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.cacheInvalidations,
		c.providerCalls,
		c.providerLatency,
		c.meetingActions,
		c.httpStatus,
	)

	return c
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(resource string) {
	c.cacheHits.WithLabelValues(resource).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(resource string) {
	c.cacheMisses.WithLabelValues(resource).Inc()
}

// RecordCacheInvalidation はキャッシュ無効化を記録する。
func (c *Collector) RecordCacheInvalidation(resource string) {
	c.cacheInvalidations.WithLabelValues(resource).Inc()
}

// ObserveProviderCall はプロバイダ呼び出しの結果とレイテンシを記録する。
func (c *Collector) ObserveProviderCall(op string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.providerCalls.WithLabelValues(op, result).Inc()
	c.providerLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordMeetingAction は会議操作（create, start, end, extend, check_in, delete）を記録する。
func (c *Collector) RecordMeetingAction(action string) {
	c.meetingActions.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ MetricsCollector = (*Collector)(nil)
