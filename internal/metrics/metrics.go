package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodpipe_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vodpipe_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Ingest metrics
	IngestsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodpipe_ingests_started_total",
			Help: "Total number of ingests started",
		},
		[]string{"slot"},
	)

	IngestsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodpipe_ingests_rejected_total",
			Help: "Total number of ingests rejected before transcoding",
		},
		[]string{"reason"},
	)

	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vodpipe_transcode_duration_seconds",
			Help:    "Wall-clock duration of transcoding jobs",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~11h
		},
	)

	TranscodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodpipe_transcode_failures_total",
			Help: "Total number of transcoding jobs that failed after starting",
		},
	)

	TranscodesInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vodpipe_transcodes_in_progress",
			Help: "Number of transcoding jobs currently running",
		},
	)

	// Artifact metrics
	ArtifactsUploadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodpipe_artifacts_uploaded_total",
			Help: "Total number of artifact files pushed to object storage",
		},
	)

	ArtifactUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vodpipe_artifact_upload_bytes",
			Help:    "Size of uploaded artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		},
	)

	// Lifecycle metrics
	AssetsReadyTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodpipe_assets_ready_total",
			Help: "Total number of assets that reached the ready state",
		},
	)

	StalledAssetsCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vodpipe_stalled_assets_collected_total",
			Help: "Total number of abandoned uploads collected by stall detection",
		},
	)

	StoragePurgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vodpipe_storage_purges_total",
			Help: "Total number of storage purges drained from the outbox",
		},
		[]string{"kind", "outcome"},
	)
)
