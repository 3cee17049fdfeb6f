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
// キャッシュ、データセット読み込み、HTTP層、ワーカーから利用する。
type MetricsCollector interface {
	CacheHit(op string)
	CacheMiss(op string)
	RecordDatasetLoad(source string, duration time.Duration, err error)
	RecordHTTPStatus(statusCode int)
	RecordXMLRefresh(users int, err error)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	datasetLoads *prometheus.CounterVec
	loadLatency  *prometheus.HistogramVec
	httpStatus   *prometheus.CounterVec
	xmlRefresh   *prometheus.CounterVec
	xmlUsers     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_cache_hits_total",
			Help: "メモ化キャッシュのヒット数",
		}, []string{"op"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_cache_misses_total",
			Help: "メモ化キャッシュのミス数（再計算の回数）",
		}, []string{"op"}),
		datasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_dataset_loads_total",
			Help: "データセット読み込みの回数",
		}, []string{"source", "result"}),
		loadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presence_dataset_load_seconds",
			Help:    "データセット読み込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		xmlRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_users_xml_refresh_total",
			Help: "users.xml更新の回数",
		}, []string{"result"}),
		xmlUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_users_xml_users",
			Help: "直近に取得したusers.xmlのユーザー数",
		}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.datasetLoads,
		c.loadLatency,
		c.httpStatus,
		c.xmlRefresh,
		c.xmlUsers,
	)

	return c
}

// CacheHit はキャッシュヒットを記録する。
func (c *Collector) CacheHit(op string) {
	c.cacheHits.WithLabelValues(op).Inc()
}

// CacheMiss はキャッシュミスを記録する。
func (c *Collector) CacheMiss(op string) {
	c.cacheMisses.WithLabelValues(op).Inc()
}

// RecordDatasetLoad はデータセット読み込みの結果とレイテンシを記録する。
func (c *Collector) RecordDatasetLoad(source string, duration time.Duration, err error) {
	c.datasetLoads.WithLabelValues(source, result(err)).Inc()
	c.loadLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordXMLRefresh はusers.xml更新の結果を記録する。
// 失敗時はユーザー数のゲージを更新しない。
func (c *Collector) RecordXMLRefresh(users int, err error) {
	c.xmlRefresh.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.xmlUsers.Set(float64(users))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
