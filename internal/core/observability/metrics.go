// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	extractionTiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_tiles_total",
			Help: "Tiles seen by extraction, by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	extractionRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_records_total",
			Help: "Records returned by extraction.",
		},
		[]string{"kind"},
	)

	extractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Time spent extracting records from tiles.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"kind"},
	)

	aggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Duration of widget calls by method and result.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"method", "result"},
	)

	workerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_requests_total",
			Help: "Worker requests by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	registrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_registry_datasets",
			Help: "Datasets currently registered in the worker.",
		},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "result_cache_op_duration_seconds",
			Help:    "Result cache backend operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events by op and result.",
		},
		[]string{"op", "result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		extractionTiles, extractionRecords, extractionDuration,
		aggregationDuration, workerRequests, registrySize,
		cacheResults, cacheOpDuration, invalidationEvents,
	}
}

func init() {
	_ = Init(prometheus.DefaultRegisterer, true)
}

// Init registers the collectors with reg. Registering twice with the same
// registry is not an error. With enabled false nothing is registered.
func Init(reg prometheus.Registerer, enabled bool) error {
	if !enabled || reg == nil {
		return nil
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveExtraction(kind string, kept, skipped, records int, durationSeconds float64) {
	extractionTiles.WithLabelValues(kind, "kept").Add(float64(kept))
	if skipped > 0 {
		extractionTiles.WithLabelValues(kind, "skipped").Add(float64(skipped))
	}
	extractionRecords.WithLabelValues(kind).Add(float64(records))
	extractionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func IncMalformedTile(kind string) {
	extractionTiles.WithLabelValues(kind, "malformed").Inc()
}

func ObserveAggregation(method string, err error, durationSeconds float64) {
	aggregationDuration.WithLabelValues(method, result(err)).Observe(durationSeconds)
}

func IncWorkerRequest(method, outcome string) {
	workerRequests.WithLabelValues(method, outcome).Inc()
}

func SetRegistrySize(n int) {
	registrySize.Set(float64(n))
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpDuration.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

func ObserveInvalidation(op string, err error) {
	invalidationEvents.WithLabelValues(op, result(err)).Inc()
}
