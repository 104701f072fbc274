package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// DivisionsDeleted counts division rows removed, descendants included.
	DivisionsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "divisions_deleted_total",
			Help: "Total number of divisions removed by cascading deletes",
		},
	)

	// CascadeDeletes counts delete operations: "ok", "not_found" or "error".
	CascadeDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "division_cascade_deletes_total",
			Help: "Cascading delete attempts by outcome",
		},
		[]string{"outcome"},
	)
)
