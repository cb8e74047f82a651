package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	// BackendRequests counts calls to the dispatch backend by endpoint and outcome.
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "backend_requests_total", Help: "Dispatch backend calls by endpoint and outcome."},
		[]string{"endpoint", "outcome"},
	)
	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "backend_request_duration_seconds", Help: "Dispatch backend call latency in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}},
		[]string{"endpoint"},
	)

	// GeocodeBatches counts flush cycles that reached the provider.
	GeocodeBatches = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "geocode_batches_total", Help: "Geocode batches sent to the provider."},
	)
	// GeocodeItems counts per-order transitions out of pending.
	GeocodeItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geocode_items_total", Help: "Geocode cache transitions by final state."},
		[]string{"state"},
	)
	AddressStoreHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "geocode_address_store_hits_total", Help: "Addresses served from the persistent address store."},
	)

	SequenceMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_sequence_mutations_total", Help: "Route sequence mutations by operation and outcome."},
		[]string{"op", "outcome"},
	)

	OrderCacheFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "technician_order_fetches_total", Help: "Technician order list fetches by outcome."},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call repeatedly.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			BackendRequests,
			BackendDuration,
			GeocodeBatches,
			GeocodeItems,
			AddressStoreHits,
			SequenceMutations,
			OrderCacheFetches,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// MetricsHandler serves Registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome maps an error to a metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
