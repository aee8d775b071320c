// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upstream_requests_total",
			Help: "Upstream catalog requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upstream_retries_total",
			Help: "Retries issued against the upstream catalog",
		},
		[]string{"operation"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_operations_total",
			Help: "Response and bucket cache lookups",
		},
		[]string{"cache", "result"},
	)

	BucketResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_bucket_resolutions_total",
			Help: "Image bucket resolutions by the strategy that produced them",
		},
		[]string{"source"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_search_duration_seconds",
			Help:    "End-to-end SearchProducts latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	DecodeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_decode_fallbacks_total",
			Help: "Upstream bodies that needed a fallback decode path",
		},
		[]string{"operation", "path"},
	)
)
