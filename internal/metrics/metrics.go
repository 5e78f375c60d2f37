package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RecordingsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_recordings_processed_total",
			Help: "Recordings that reached a terminal pipeline state, by outcome.",
		},
		[]string{"outcome"},
	)

	MemoriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recall_memories_created_total",
			Help: "Consolidated memories persisted by the pipeline.",
		},
	)

	ExtractionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recall_extraction_failures_total",
			Help: "AI extraction calls that failed or returned malformed output.",
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_stage_duration_seconds",
			Help:    "Per-recording pipeline stage duration in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_sync_runs_total",
			Help: "Sync runs started, by trigger.",
		},
		[]string{"trigger"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RecordingsProcessedTotal,
		MemoriesCreatedTotal,
		ExtractionFailuresTotal,
		StageDuration,
		SyncRunsTotal,
	)
}
