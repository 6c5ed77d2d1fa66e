package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrubstream_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Job Metrics
	JobsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubstream_jobs_triggered_total",
			Help: "Total number of processing jobs triggered",
		},
	)

	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_jobs_finished_total",
			Help: "Total number of processing jobs that reached a terminal state",
		},
		[]string{"status"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrubstream_jobs_in_progress",
			Help: "Number of jobs currently being processed",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrubstream_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		},
		[]string{"status"},
	)

	// Stage Metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrubstream_stage_duration_seconds",
			Help:    "Duration of one processing stage (probe, encode, scrub, sprites)",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"stage", "status"},
	)

	RenditionsProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_renditions_total",
			Help: "Playback renditions produced, per quality",
		},
		[]string{"quality"},
	)

	SourceDurationProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubstream_source_duration_processed_seconds_total",
			Help: "Total seconds of source video processed",
		},
	)

	// Delivery Metrics
	DeliveryBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_delivery_bytes_total",
			Help: "Bytes streamed to clients, per artifact kind",
		},
		[]string{"artifact"},
	)

	DeliveryMissingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_delivery_missing_total",
			Help: "Requests for artifacts missing on disk",
		},
		[]string{"artifact"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_storage_operations_total",
			Help: "Total number of archive storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageBytesTransferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrubstream_storage_bytes_transferred_total",
			Help: "Total bytes uploaded to archive storage",
		},
	)

	// Dependency Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrubstream_queue_depth",
			Help: "Tasks waiting in the broker queue",
		},
	)

	DependencyUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrubstream_dependency_up",
			Help: "Whether a dependency answered its last health check (1) or not (0)",
		},
		[]string{"dependency"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrubstream_errors_total",
			Help: "Total number of errors by component and type",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordJobTriggered records a trigger call
func RecordJobTriggered() {
	JobsTriggeredTotal.Inc()
}

// RecordJobStarted marks a job as running
func RecordJobStarted() {
	JobsInProgress.Inc()
}

// RecordJobFinished records a terminal job state
func RecordJobFinished(status string, duration float64) {
	JobsInProgress.Dec()
	JobsCompletedTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(status).Observe(duration)
}

// RecordStage records the duration of one processing stage
func RecordStage(stage string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordRendition records a produced playback rendition
func RecordRendition(quality string) {
	RenditionsProduced.WithLabelValues(quality).Inc()
}

// RecordSourceDuration adds processed source seconds
func RecordSourceDuration(seconds float64) {
	SourceDurationProcessed.Add(seconds)
}

// RecordDelivery records bytes streamed for an artifact kind
func RecordDelivery(artifact string, bytes int64) {
	DeliveryBytesTotal.WithLabelValues(artifact).Add(float64(bytes))
}

// RecordMissingArtifact records a request for a file that is gone from disk
func RecordMissingArtifact(artifact string) {
	DeliveryMissingTotal.WithLabelValues(artifact).Inc()
}

// RecordStorageOperation records an archive storage operation
func RecordStorageOperation(operation, status string, bytesTransferred int64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	if bytesTransferred > 0 {
		StorageBytesTransferred.Add(float64(bytesTransferred))
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordQueueDepth records the number of waiting tasks
func RecordQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordDependencyHealth records the outcome of a health check
func RecordDependencyHealth(dependency string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	DependencyUp.WithLabelValues(dependency).Set(value)
}
