// Package metrics provides the centralized Prometheus metrics registry
// for the NVD CVE client. All metrics are defined in their respective
// packages (nvdapi, transport, checkpoint) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the NVD client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Fetch Engine Metrics (pkg/nvdapi):
//   - nvd_pages_total{result} (Counter): Pages processed by result (ok, rejected)
//   - nvd_items_total (Counter): Vulnerability items yielded to consumers
//
// Transport Metrics (pkg/transport):
//   - nvd_requests_total{status} (Counter): Requests dispatched by final HTTP status
//   - nvd_request_duration_seconds (Histogram): Request duration including throttle retries
//   - nvd_throttle_retries_total (Counter): Transparent retries of throttled responses
//   - nvd_throttle_backoff_seconds (Histogram): Backoff before throttle retries
//   - nvd_retry_exhausted_total (Counter): Requests whose throttle retries were exhausted
//
// Checkpoint Metrics (pkg/checkpoint):
//   - nvd_checkpoint_last_modified_seconds (Gauge): Persisted last-modified epoch
//   - nvd_checkpoint_errors_total{operation} (Counter): Checkpoint operation errors
//
// Example Prometheus Queries:
//
//   # Pages rejected by the API (iteration stalls)
//   rate(nvd_pages_total{result="rejected"}[5m])
//
//   # Throttle pressure
//   rate(nvd_throttle_retries_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(nvd_request_duration_seconds_bucket[5m]))
//
//   # Checkpoint staleness (seconds since last dataset change)
//   time() - nvd_checkpoint_last_modified_seconds
