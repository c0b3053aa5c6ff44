// Package metrics documents the Prometheus metrics exported by web-tools.
// The collectors themselves live next to the code that updates them
// (client, pagination, ratelimit, store) and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every web-tools collector is attached to.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Namespace prefixes every metric name.
const Namespace = "webtools"

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - webtools_requests_total{endpoint, status} (Counter)
//   - webtools_request_duration_seconds{endpoint} (Histogram)
//   - webtools_scheme_fallbacks_total (Counter): targets corrected to https
//
// Pagination Metrics (pkg/pagination):
//   - webtools_pages_fetched_total{endpoint} (Counter)
//   - webtools_usage_cap_exceeded_total (Counter)
//   - webtools_throttle_sleeps_total{endpoint} (Counter)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - webtools_rate_limit_remaining{endpoint} (Gauge)
//   - webtools_rate_limit_limit{endpoint} (Gauge)
//   - webtools_rate_limit_percent_remaining{endpoint} (Gauge)
//
// Persistence Metrics (pkg/store):
//   - webtools_rows_persisted_total{table} (Counter)
//
// Example Prometheus Queries:
//
//   # Endpoints close to their per-epoch quota
//   webtools_rate_limit_percent_remaining < 10
//
//   # Pages per minute by endpoint
//   rate(webtools_pages_fetched_total[1m])
