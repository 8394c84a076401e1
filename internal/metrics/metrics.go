// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Steam APIのエンドポイント名（ラベル値）。
const (
	EndpointOwnedGames  = "owned_games"
	EndpointAppDetails  = "app_details"
	EndpointOpenIDCheck = "openid_check"
)

// キャッシュ名（ラベル値）。
const (
	CacheOwnedGames = "owned_games"
	CacheAppDetails = "app_details"
)

// エンリッチメント結果（ラベル値）。
const (
	EnrichmentSuccess = "success"
	EnrichmentAbsent  = "absent"
	EnrichmentFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Steamクライアントやエンリッチメント処理、ハンドラー層から利用する。
type MetricsCollector interface {
	RecordUpstreamStatus(endpoint string, statusCode int)
	RecordUpstreamFailure(endpoint string)
	RecordUpstreamLatency(endpoint string, duration time.Duration)
	RecordCacheLookup(cache string, hit bool)
	RecordEnrichment(outcome string)
	RecordLogin(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamStatus  *prometheus.CounterVec
	upstreamFail    *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	enrichment      *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamctx_upstream_status_total",
			Help: "Steam APIのHTTPステータスコード別レスポンス数",
		}, []string{"endpoint", "status_code"}),
		upstreamFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamctx_upstream_fail_total",
			Help: "Steam API呼び出し失敗（通信エラー・非2xx・デコード失敗）の合計数",
		}, []string{"endpoint"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steamctx_upstream_latency_seconds",
			Help:    "Steam API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamctx_cache_lookups_total",
			Help: "キャッシュ参照数（hit/miss別）",
		}, []string{"cache", "result"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamctx_enrichment_total",
			Help: "ゲーム詳細エンリッチメントの結果別件数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamctx_logins_total",
			Help: "Steamログイン検証の結果別件数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.upstreamStatus,
		c.upstreamFail,
		c.upstreamLatency,
		c.cacheLookups,
		c.enrichment,
		c.logins,
	)

	return c
}

// RecordUpstreamStatus はSteam APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(endpoint string, statusCode int) {
	c.upstreamStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamFailure はSteam API呼び出し失敗を記録する。
func (c *Collector) RecordUpstreamFailure(endpoint string) {
	c.upstreamFail.WithLabelValues(endpoint).Inc()
}

// RecordUpstreamLatency はSteam API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(endpoint string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheLookup はキャッシュ参照結果を記録する。
func (c *Collector) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordEnrichment はエンリッチメント結果を記録する。
func (c *Collector) RecordEnrichment(outcome string) {
	c.enrichment.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン検証の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// Nop は何も記録しないMetricsCollector。
// メトリクスが不要なテストや組み込み用途で使用する。
type Nop struct{}

func (Nop) RecordUpstreamStatus(string, int) {}
func (Nop) RecordUpstreamFailure(string) {}
func (Nop) RecordUpstreamLatency(string, time.Duration) {}
func (Nop) RecordCacheLookup(string, bool) {}
func (Nop) RecordEnrichment(string) {}
func (Nop) RecordLogin(bool) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
