// Package observability holds the structured logger and Prometheus
// metrics shared across the ingest worker pool and the ops server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesWalked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facecat",
		Name:      "files_walked_total",
		Help:      "Total number of files visited by the directory walker",
	})

	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecat",
		Name:      "images_processed_total",
		Help:      "Total number of images processed, by outcome",
	}, []string{"outcome"}) // "processed" | "failed"

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facecat",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected across all images",
	})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecat",
		Name:      "faces_matched_total",
		Help:      "Total number of faces resolved to a person, by outcome",
	}, []string{"outcome"}) // "existing_person" | "new_person" | "error"

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecat",
		Name:      "inference_duration_seconds",
		Help:      "Duration of detector/embedder inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"}) // "detect" | "embed" | "attributes"

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecat",
		Name:      "queue_depth",
		Help:      "Number of files queued for a worker",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecat",
		Name:      "active_workers",
		Help:      "Current size of the adaptive worker pool",
	})

	WorkerRespawns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facecat",
		Name:      "worker_respawns_total",
		Help:      "Total number of worker goroutines respawned after a panic",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecat",
		Name:      "http_request_duration_seconds",
		Help:      "Ops server HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecat",
		Name:      "ws_connections",
		Help:      "Number of active ops-progress WebSocket connections",
	})
)
