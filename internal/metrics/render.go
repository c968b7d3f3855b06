package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumeforge",
			Subsystem: "render",
			Name:      "jobs_total",
			Help:      "渲染任务总数，按引擎与结果分类。",
		},
		[]string{"engine", "outcome"},
	)

	renderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resumeforge",
			Subsystem: "render",
			Name:      "job_duration_seconds",
			Help:      "渲染任务耗时分布（秒）。",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"engine"},
	)

	renderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resumeforge",
			Subsystem: "render",
			Name:      "jobs_in_progress",
			Help:      "当前正在执行的渲染任务数量。",
		},
	)

	renderChildRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resumeforge",
			Subsystem: "render",
			Name:      "child_restarts_total",
			Help:      "渲染子进程被重启的次数。",
		},
	)

	thumbnailTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumeforge",
			Subsystem: "thumbnail",
			Name:      "derivations_total",
			Help:      "缩略图生成次数，按结果分类。",
		},
		[]string{"outcome"},
	)
)

// RenderStarted 标记一个渲染任务开始执行，返回结束回调。
func RenderStarted(engine string) func(outcome string, seconds float64) {
	renderJobsInProgress.Inc()
	return func(outcome string, seconds float64) {
		renderJobsInProgress.Dec()
		renderJobsTotal.WithLabelValues(engine, outcome).Inc()
		renderJobDuration.WithLabelValues(engine).Observe(seconds)
	}
}

// RenderChildRestarted 记录一次子进程重启。
func RenderChildRestarted() {
	renderChildRestarts.Inc()
}

// ThumbnailDerived 记录缩略图生成结果。
func ThumbnailDerived(outcome string) {
	thumbnailTotal.WithLabelValues(outcome).Inc()
}
