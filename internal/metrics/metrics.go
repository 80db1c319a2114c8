// Package metrics holds the Prometheus collectors for the gateway.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "usernamecheck"

var (
	httpRequestsTotal     atomic.Pointer[prometheus.CounterVec]
	httpRequestDuration   atomic.Pointer[prometheus.HistogramVec]
	gatewayRequestsTotal  atomic.Pointer[prometheus.CounterVec]
	upstreamChecksTotal   atomic.Pointer[prometheus.CounterVec]
	upstreamCheckDuration atomic.Pointer[prometheus.HistogramVec]
	housekeepingRowsTotal atomic.Pointer[prometheus.CounterVec]
)

// Init registers all collectors with reg. Record functions are no-ops until
// Init has run.
func Init(reg prometheus.Registerer) error {
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	gatewayRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Check requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
	upstreamChecks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "checks_total",
			Help:      "Per-username upstream checks by result.",
		},
		[]string{"result"},
	)
	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "check_duration_seconds",
			Help:      "Latency of single upstream username checks.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"result"},
	)
	housekeepingRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "housekeeping",
			Name:      "rows_total",
			Help:      "Rows touched by scheduled housekeeping tasks.",
		},
		[]string{"task"},
	)

	for name, c := range map[string]prometheus.Collector{
		"http_requests_total":           httpRequests,
		"http_request_duration_seconds": httpDuration,
		"gateway_requests_total":        gatewayRequests,
		"upstream_checks_total":         upstreamChecks,
		"upstream_check_duration":       upstreamDuration,
		"housekeeping_rows_total":       housekeepingRows,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	httpRequestsTotal.Store(httpRequests)
	httpRequestDuration.Store(httpDuration)
	gatewayRequestsTotal.Store(gatewayRequests)
	upstreamChecksTotal.Store(upstreamChecks)
	upstreamCheckDuration.Store(upstreamDuration)
	housekeepingRowsTotal.Store(housekeepingRows)

	return nil
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if counter := httpRequestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, status).Inc()
	}
	if histogram := httpRequestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path).Observe(duration.Seconds())
	}
}

// RecordGatewayOutcome counts one terminal outcome such as "ok" or "rate_limited".
func RecordGatewayOutcome(outcome string) {
	if counter := gatewayRequestsTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// RecordUpstreamCheck counts one username check; result is "available",
// "taken", "throttled" or "error".
func RecordUpstreamCheck(result string, duration time.Duration) {
	if counter := upstreamChecksTotal.Load(); counter != nil {
		counter.WithLabelValues(result).Inc()
	}
	if histogram := upstreamCheckDuration.Load(); histogram != nil {
		histogram.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func RecordHousekeeping(task string, rows int64) {
	if counter := housekeepingRowsTotal.Load(); counter != nil {
		counter.WithLabelValues(task).Add(float64(rows))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
