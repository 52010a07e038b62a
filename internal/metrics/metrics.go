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
// パイプラインの各サービスとワーカーから利用する。
type MetricsCollector interface {
	RecordTrendsFetched(platform string, kept, discarded int)
	RecordFetchFailure(source string)
	RecordCacheLookup(hit bool)
	RecordGeneration(provider string, ok bool)
	RecordVerdict(verdict string)
	RecordEvaluationFailure()
	RecordStageLatency(stage string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordAPIResponse(statusCode int)
	RecordCandidatesUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	trendsKept         *prometheus.CounterVec
	trendsDiscarded    *prometheus.CounterVec
	fetchFail          *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	generations        *prometheus.CounterVec
	verdicts           *prometheus.CounterVec
	evaluationFail     prometheus.Counter
	stageLatency       *prometheus.HistogramVec
	httpStatus         *prometheus.CounterVec
	apiResponses       *prometheus.CounterVec
	candidatesUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		trendsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_trends_fetched_total",
			Help: "結果として返したトレンド数",
		}, []string{"platform"}),
		trendsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_trends_discarded_total",
			Help: "鮮度・件数上限・検証により除外したトレンド候補数",
		}, []string{"platform"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_trend_fetch_fail_total",
			Help: "トレンド取得元の失敗数",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_trend_cache_lookups_total",
			Help: "トレンドキャッシュの参照数",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_generations_total",
			Help: "コンテンツ生成の実行数",
		}, []string{"provider", "result"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_verdicts_total",
			Help: "判定結果別の評価数",
		}, []string{"verdict"}),
		evaluationFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentskills_evaluation_fail_total",
			Help: "評価が判定を返せなかった回数",
		}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentskills_stage_latency_seconds",
			Help:    "パイプライン段階ごとのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_source_http_status_total",
			Help: "トレンド取得元のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		apiResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentskills_api_responses_total",
			Help: "APIのステータスコード別レスポンス数",
		}, []string{"status_code"}),
		candidatesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentskills_candidates_upserted_total",
			Help: "収集ワーカーが保存したトレンド候補の合計数",
		}),
	}

	reg.MustRegister(
		c.trendsKept,
		c.trendsDiscarded,
		c.fetchFail,
		c.cacheLookups,
		c.generations,
		c.verdicts,
		c.evaluationFail,
		c.stageLatency,
		c.httpStatus,
		c.apiResponses,
		c.candidatesUpserted,
	)

	return c
}

// RecordTrendsFetched は返却したトレンド数と除外した候補数を記録する。
func (c *Collector) RecordTrendsFetched(platform string, kept, discarded int) {
	c.trendsKept.WithLabelValues(platform).Add(float64(kept))
	c.trendsDiscarded.WithLabelValues(platform).Add(float64(discarded))
}

// RecordFetchFailure は取得元の失敗を記録する。
func (c *Collector) RecordFetchFailure(source string) {
	c.fetchFail.WithLabelValues(source).Inc()
}

// RecordCacheLookup はキャッシュのヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordGeneration はコンテンツ生成の成否を記録する。
func (c *Collector) RecordGeneration(provider string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.generations.WithLabelValues(provider, result).Inc()
}

// RecordVerdict は判定結果を記録する。
func (c *Collector) RecordVerdict(verdict string) {
	c.verdicts.WithLabelValues(verdict).Inc()
}

// RecordEvaluationFailure は評価の失敗を記録する。
func (c *Collector) RecordEvaluationFailure() {
	c.evaluationFail.Inc()
}

// RecordStageLatency は段階ごとのレイテンシを記録する。
func (c *Collector) RecordStageLatency(stage string, duration time.Duration) {
	c.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordHTTPStatus はトレンド取得元のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAPIResponse はAPIが返したステータスコードを記録する。
func (c *Collector) RecordAPIResponse(statusCode int) {
	c.apiResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCandidatesUpserted は保存したトレンド候補数を記録する。
func (c *Collector) RecordCandidatesUpserted(count int) {
	c.candidatesUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセス単体でのスクレイプに使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
