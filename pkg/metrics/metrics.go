// Package metrics exposes the Prometheus registry shared by the worker
// packages. Metrics are defined next to the code that records them (cache,
// batch, worker) via promauto and land in the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package-level metric is created in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching source for scrapes.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - pwa_cache_hits_total{layer} (Counter): Hits by layer ("hot", "backend")
//   - pwa_cache_misses_total (Counter): Lookups that found no entry
//   - pwa_cache_writes_total (Counter): Stored entries
//   - pwa_cache_generations_deleted_total (Counter): Dropped generations
//   - pwa_cache_errors_total{operation} (Counter): Backend errors by operation
//
// Worker Metrics (pkg/worker):
//   - pwa_worker_fetch_total{class, source} (Counter): Intercepted requests by class
//     (api, static, unhandled) and response source (network, cache, offline, shell,
//     passthrough, error)
//   - pwa_worker_fetch_duration_seconds{class} (Histogram): Handling time by class
//   - pwa_worker_lifecycle_state{static_cache} (Gauge): worker.State per version
//   - pwa_worker_install_total{outcome} (Counter): Installs by outcome
//   - pwa_worker_refresh_total{outcome} (Counter): Refreshed URLs by outcome
//     (updated, unchanged, failure)
//
// Batch Metrics (pkg/batch):
//   - pwa_batch_retries_total (Counter): Retry attempts
//   - pwa_batch_retry_exhausted_total (Counter): Fetches that exhausted their attempts
//
// Example Prometheus Queries:
//
//   # Offline answers (API served from cache or synthetic 503)
//   sum(rate(pwa_worker_fetch_total{class="api",source=~"cache|offline"}[5m]))
//
//   # Static hit rate
//   sum(rate(pwa_worker_fetch_total{class="static",source="cache"}[5m])) /
//   sum(rate(pwa_worker_fetch_total{class="static"}[5m]))
//
//   # Refresh failures
//   rate(pwa_worker_refresh_total{outcome="failure"}[15m])
