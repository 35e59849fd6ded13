// Package metrics exposes plugin-level Prometheus metrics. Collectors are
// registered on the default registry, which the plugin SDK serves from the
// plugin's metrics endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mirador_datasource"

const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Number of query targets executed, by query type and outcome.",
	}, []string{"query_type", "status"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Time spent executing a single query target.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query_type"})

	concurrentQueries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "concurrent_queries",
		Help:      "Query targets currently in flight.",
	})

	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Requests sent to Mirador Core, by endpoint and HTTP status code (0 for transport failures).",
	}, []string{"endpoint", "code"})
)

// RecordQuery records metrics for a completed query target.
func RecordQuery(queryType string, duration time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	queriesTotal.WithLabelValues(queryType, status).Inc()
	queryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordBackendRequest counts one call to the backend.
func RecordBackendRequest(endpoint string, statusCode int) {
	backendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// IncrementConcurrentQueries increments the count of concurrent queries
func IncrementConcurrentQueries() {
	concurrentQueries.Inc()
}

// DecrementConcurrentQueries decrements the count of concurrent queries
func DecrementConcurrentQueries() {
	concurrentQueries.Dec()
}
