package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by entry state
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artsel_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"state"}, // "fresh", "stale" (served for revalidation)
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artsel_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheEntryBytes tracks the size of stored page entries
	CacheEntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "artsel_cache_entry_bytes",
			Help:    "Size of page entries written to the cache",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		},
	)

	// NotModifiedResponses tracks 304 responses served from cache
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artsel_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks requests revalidated with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artsel_conditional_requests_total",
			Help: "Total number of conditional page requests sent",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artsel_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
