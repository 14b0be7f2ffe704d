// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultRetry   = "retry"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ディスパッチャ、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordDispatch(channel string, success bool, duration time.Duration)
	RecordImageOp(op string, err error, duration time.Duration)
	RecordAIRequest(err error, imageCount int, duration time.Duration)
	RecordAIImageSkipped(reason string)
	RecordJob(jobType, result string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	dispatchCalls   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	imageOps        *prometheus.CounterVec
	imageOpLatency  *prometheus.HistogramVec
	aiRequests      *prometheus.CounterVec
	aiLatency       prometheus.Histogram
	aiImagesSent    prometheus.Counter
	aiImagesSkipped *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobLatency      *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resaleman_dispatch_calls_total",
			Help: "エンドポイント呼び出しの合計数",
		}, []string{"channel", "result"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resaleman_dispatch_latency_seconds",
			Help:    "エンドポイント呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		imageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resaleman_image_operations_total",
			Help: "画像処理の実行数",
		}, []string{"op", "result"}),
		imageOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resaleman_image_operation_seconds",
			Help:    "画像処理の所要時間（秒）",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resaleman_ai_requests_total",
			Help: "AI画像分析リクエスト数",
		}, []string{"result"}),
		aiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resaleman_ai_request_seconds",
			Help:    "AI画像分析のレイテンシ（秒）",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60},
		}),
		aiImagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resaleman_ai_images_sent_total",
			Help: "AI分析に送信した画像の合計数",
		}),
		aiImagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resaleman_ai_images_skipped_total",
			Help: "前処理で除外した画像数",
		}, []string{"reason"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resaleman_job_runs_total",
			Help: "バックグラウンドジョブの実行数",
		}, []string{"job_type", "result"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resaleman_job_duration_seconds",
			Help:    "バックグラウンドジョブの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_type"}),
	}

	reg.MustRegister(
		c.dispatchCalls,
		c.dispatchLatency,
		c.imageOps,
		c.imageOpLatency,
		c.aiRequests,
		c.aiLatency,
		c.aiImagesSent,
		c.aiImagesSkipped,
		c.jobRuns,
		c.jobLatency,
	)

	return c
}

// RecordDispatch はエンドポイント呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordDispatch(channel string, success bool, duration time.Duration) {
	c.dispatchCalls.WithLabelValues(channel, resultLabel(success)).Inc()
	c.dispatchLatency.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordImageOp は画像処理の結果と所要時間を記録する。
func (c *Collector) RecordImageOp(op string, err error, duration time.Duration) {
	c.imageOps.WithLabelValues(op, resultLabel(err == nil)).Inc()
	c.imageOpLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordAIRequest はAI分析リクエストを記録する。imageCountは送信した画像数。
func (c *Collector) RecordAIRequest(err error, imageCount int, duration time.Duration) {
	c.aiRequests.WithLabelValues(resultLabel(err == nil)).Inc()
	c.aiLatency.Observe(duration.Seconds())
	c.aiImagesSent.Add(float64(imageCount))
}

// RecordAIImageSkipped は前処理で除外した画像を記録する。
func (c *Collector) RecordAIImageSkipped(reason string) {
	c.aiImagesSkipped.WithLabelValues(reason).Inc()
}

// RecordJob はジョブの実行結果を記録する。resultはResultSuccess/ResultFailure/ResultRetry。
func (c *Collector) RecordJob(jobType, result string, duration time.Duration) {
	c.jobRuns.WithLabelValues(jobType, result).Inc()
	c.jobLatency.WithLabelValues(jobType).Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
