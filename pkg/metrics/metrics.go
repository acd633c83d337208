// Package metrics is the Prometheus registry of artsel and the home of the
// selection and session metrics. Transport metrics live next to their code in
// pkg/client, pkg/cache and pkg/ratelimit.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by artsel.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Selection and session metrics.
var (
	// SelectionOps counts engine operations by kind
	// (toggle_row, toggle_all, apply_page, request_target, clear).
	SelectionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_selection_operations_total",
		Help: "Selection operations by kind",
	}, []string{"op"})

	// InvalidTargets counts rejected "select N rows" inputs.
	InvalidTargets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artsel_selection_invalid_targets_total",
		Help: "Rejected target inputs",
	})

	// PageLoads counts session page loads by outcome (ok, error).
	PageLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artsel_page_loads_total",
		Help: "Session page loads by outcome",
	}, []string{"outcome"})

	// SessionsActive is the number of live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artsel_sessions_active",
		Help: "Live selection sessions",
	})

	// PendingTargets is the number of sessions with an unmet target.
	PendingTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artsel_pending_targets",
		Help: "Sessions whose target is not yet met",
	})

	// SelectionSize observes the selected set size after each change.
	SelectionSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artsel_selection_size",
		Help:    "Size of the selected set after a change",
		Buckets: []float64{0, 1, 5, 12, 25, 50, 100, 250, 1000},
	})
)

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - artsel_rate_limit_remaining (Gauge): Requests remaining in the API window
//   - artsel_rate_limit_blocks_total (Counter): Requests blocked at the critical threshold
//   - artsel_rate_limit_throttles_total (Counter): Requests delayed at the warning threshold
//
// Cache Metrics (pkg/cache):
//   - artsel_cache_hits_total{state} (Counter): Cache hits, fresh or stale-for-revalidation
//   - artsel_cache_misses_total (Counter): Cache misses
//   - artsel_cache_entry_bytes (Histogram): Size of stored page entries
//   - artsel_304_responses_total (Counter): 304 Not Modified responses
//   - artsel_conditional_requests_total (Counter): Conditional requests sent
//   - artsel_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - artsel_requests_total{endpoint, status} (Counter)
//   - artsel_request_duration_seconds{endpoint} (Histogram)
//   - artsel_errors_total{class} (Counter): client, server, rate_limit, network, malformed
//   - artsel_retries_total{error_class}, artsel_retry_backoff_seconds{error_class},
//     artsel_retry_exhausted_total{error_class}
//
// Selection Metrics (this package):
//   - artsel_selection_operations_total{op}, artsel_selection_invalid_targets_total
//   - artsel_page_loads_total{outcome}, artsel_sessions_active, artsel_pending_targets
//   - artsel_selection_size (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(artsel_cache_hits_total[5m])) /
//   (sum(rate(artsel_cache_hits_total[5m])) + sum(rate(artsel_cache_misses_total[5m])))
//
//   # Failed page loads
//   rate(artsel_page_loads_total{outcome="error"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(artsel_request_duration_seconds_bucket[5m]))
