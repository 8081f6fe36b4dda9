// Package metrics exposes the Prometheus registry used by coinrate.
// Metrics are defined in their owning packages (cache, catalog, client,
// ratelimit, resolver) via promauto to avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all coinrate metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - coinrate_cache_hits_total{cache, state} (Counter): Hits by freshness state (fresh, stale)
//   - coinrate_cache_misses_total{cache} (Counter): Cache misses
//   - coinrate_cache_errors_total{operation} (Counter): Redis errors (get, set, delete, acquire, release, held)
//   - coinrate_cache_entry_bytes (Histogram): Stored entry size
//   - coinrate_cache_flights_total{cache, result} (Counter): Upstream refreshes by result
//   - coinrate_cache_coalesced_total{cache} (Counter): Callers that shared another caller's refresh
//   - coinrate_cache_busy_waits_total{cache} (Counter): Waits on a busy marker held by another process
//   - coinrate_cache_fetch_duration_seconds{cache} (Histogram): Refresh duration
//
// Catalog Metrics (pkg/catalog):
//   - coinrate_catalog_updates_total{result} (Counter): Market data updates (written, unchanged, error)
//
// Resolver Metrics (pkg/resolver):
//   - coinrate_resolver_resolutions_total{status} (Counter): Resolutions by status (resolved, stale, empty)
//   - coinrate_resolver_reconciliations_total{result} (Counter): Catalog write-backs of live values
//   - coinrate_resolver_fiat_fallbacks_total (Counter): Static USD-only fiat table served
//
// Rate Limit Metrics (pkg/ratelimit):
//   - coinrate_upstream_credits_used (Gauge): Credits used in the current window
//   - coinrate_rate_limit_blocks_total (Counter): Requests blocked (budget exhausted or 429 block)
//   - coinrate_rate_limit_throttles_total (Counter): Requests throttled near the budget
//
// Upstream Metrics (pkg/client):
//   - coinrate_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and status
//   - coinrate_upstream_request_duration_seconds{endpoint} (Histogram): Request duration
//   - coinrate_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - coinrate_upstream_retries_total{error_class} (Counter): Retry attempts
//   - coinrate_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - coinrate_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Example Prometheus Queries:
//
//   # Quote cache hit rate
//   sum(rate(coinrate_cache_hits_total{cache="quote"}[5m])) /
//   (sum(rate(coinrate_cache_hits_total{cache="quote"}[5m])) + sum(rate(coinrate_cache_misses_total{cache="quote"}[5m])))
//
//   # Single-flight effectiveness
//   rate(coinrate_cache_coalesced_total[5m]) / rate(coinrate_cache_flights_total[5m])
//
//   # Catalog fallbacks
//   rate(coinrate_resolver_resolutions_total{status="stale"}[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(coinrate_upstream_request_duration_seconds_bucket[5m]))
