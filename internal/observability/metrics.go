package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	stageDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_stage_duration_ms",
			Help:    "Latency of each pipeline stage (schema, generate, execute, answer) in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage", "status"},
	)
	schemaFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_schema_fetch_total",
			Help: "Total number of schema introspections against the database.",
		},
		[]string{"status"},
	)
	archiveUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_archive_uploads_total",
			Help: "Total number of transcript archive uploads.",
		},
		[]string{"status"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_active_sessions",
			Help: "Number of chat sessions currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		turnsTotal,
		stageDurationMs,
		schemaFetchTotal,
		archiveUploadsTotal,
		activeSessions,
	)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration, err error) {
	stageDurationMs.WithLabelValues(stage, statusLabel(err)).Observe(float64(elapsed.Milliseconds()))
}

func ObserveSchemaFetch(err error) {
	schemaFetchTotal.WithLabelValues(statusLabel(err)).Inc()
}

func ObserveArchiveUpload(err error) {
	archiveUploadsTotal.WithLabelValues(statusLabel(err)).Inc()
}

func SessionOpened() {
	activeSessions.Inc()
}

func SessionClosed() {
	activeSessions.Dec()
}
