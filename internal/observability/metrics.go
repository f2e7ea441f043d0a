// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Balance aggregation metrics
	BalanceFetches    *prometheus.CounterVec
	HoldingsReturned  prometheus.Histogram
	NativeMerges      prometheus.Counter

	// Metadata metrics
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	MetadataResolutions *prometheus.CounterVec

	// Escrow metrics
	EscrowSubmissions   *prometheus.CounterVec
	EscrowListRefreshes *prometheus.CounterVec
	EscrowsListed       prometheus.Gauge

	// HTTP metrics
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "escrow_gateway"
	}

	return &Metrics{
		// Balance aggregation metrics
		BalanceFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "fetches_total",
			Help:      "Total number of balance aggregations by status",
		}, []string{"status"}),
		HoldingsReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "holdings_returned",
			Help:      "Number of holdings returned per aggregation",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		NativeMerges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "native_merges_total",
			Help:      "Total number of native balance merges into a wrapped holding",
		}),

		// Metadata metrics
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_hits_total",
			Help:      "Total number of metadata cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_misses_total",
			Help:      "Total number of metadata cache misses (including TTL expiry)",
		}),
		MetadataResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "resolutions_total",
			Help:      "Total number of metadata resolutions by outcome",
		}, []string{"outcome"}),

		// Escrow metrics
		EscrowSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "submissions_total",
			Help:      "Total number of escrow action submissions by action and status",
		}, []string{"action", "status"}),
		EscrowListRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "list_refreshes_total",
			Help:      "Total number of escrow list refreshes by status",
		}, []string{"status"}),
		EscrowsListed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "listed",
			Help:      "Number of escrows in the current in-memory list",
		}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and code",
		}, []string{"route", "code"}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBalanceFetch records a balance aggregation outcome.
func RecordBalanceFetch(status string, holdings int) {
	DefaultMetrics.BalanceFetches.WithLabelValues(status).Inc()
	if status == "success" {
		DefaultMetrics.HoldingsReturned.Observe(float64(holdings))
	}
}

// RecordNativeMerge increments the native merge counter.
func RecordNativeMerge() {
	DefaultMetrics.NativeMerges.Inc()
}

// RecordCacheHit increments the metadata cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.CacheHits.Inc()
}

// RecordCacheMiss increments the metadata cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.CacheMisses.Inc()
}

// RecordMetadataResolution records a metadata resolution outcome.
func RecordMetadataResolution(outcome string) {
	DefaultMetrics.MetadataResolutions.WithLabelValues(outcome).Inc()
}

// RecordEscrowSubmission records an escrow action submission outcome.
func RecordEscrowSubmission(action, status string) {
	DefaultMetrics.EscrowSubmissions.WithLabelValues(action, status).Inc()
}

// RecordEscrowListRefresh records an escrow list refresh and its size.
func RecordEscrowListRefresh(status string, listed int) {
	DefaultMetrics.EscrowListRefreshes.WithLabelValues(status).Inc()
	if status == "success" {
		DefaultMetrics.EscrowsListed.Set(float64(listed))
	}
}

// RecordHTTPRequest records an HTTP request with its latency.
func RecordHTTPRequest(route string, code int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPRequestLatency.WithLabelValues(route).Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
