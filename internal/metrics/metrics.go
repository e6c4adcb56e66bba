// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzer_api_request_duration_seconds",
			Help:    "Total time taken for proxy requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"agent", "mode"},
	)

	TimeToFirstChunk = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzer_api_time_to_first_chunk_seconds",
			Help:    "Time to first relayed chunk in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"agent"},
	)

	ChunksRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_chunks_relayed_total",
			Help: "Total number of stream chunks relayed to callers",
		},
		[]string{"agent"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_request_count_total",
			Help: "Total number of proxy requests processed",
		},
		[]string{"agent", "mode", "status"},
	)

	InflightRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analyzer_api_inflight_requests",
			Help: "Current Inflight Requests",
		},
		[]string{"agent"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_error_count",
			Help: "Error count",
		},
		[]string{"agent", "mode", "from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)

	FilesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_files_uploaded_total",
			Help: "Total number of uploaded files accepted",
		},
		[]string{"extension"},
	)

	ReportsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_api_reports_exported_total",
			Help: "Total number of report exports served",
		},
		[]string{"type"},
	)
)
