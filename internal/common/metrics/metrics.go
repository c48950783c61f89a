package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion
var (
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Source rows seen by the normalizer, by table and outcome",
		},
		[]string{"table", "outcome"},
	)

	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_payloads_total",
			Help: "Records handed to or skipped by the formatter",
		},
		[]string{"kind", "outcome"},
	)

	IngestRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time of a full ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)
)

// Recommendation gateway
var (
	GatewayBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_batches_total",
			Help: "Batch writes sent to the recommendation service",
		},
		[]string{"kind", "outcome"},
	)

	GatewayItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_batch_items_total",
			Help: "Individual entries inside batch writes, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "HTTP calls made to the recommendation service",
		},
		[]string{"operation", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of recommendation service calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// Serving path
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "API requests by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_fallbacks_total",
			Help: "Read requests answered from local data instead of the service",
		},
		[]string{"operation", "reason"},
	)

	ProfileCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_cache_total",
			Help: "Preference profile cache lookups",
		},
		[]string{"result"},
	)
)

// Job workers
var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
