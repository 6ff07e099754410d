package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate"

// Metrics holds the Prometheus counters of the map data backend.
type Metrics struct {
	LayerRequests      *prometheus.CounterVec // labels: kind={vector,cog,vector-tile,raster-tile}, outcome
	LayerCache         *prometheus.CounterVec // labels: result={hit,miss}
	ReprojectionErrors prometheus.Counter
	StyleFetchFailures prometheus.Counter
	MapSessions        prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		LayerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_requests_total",
			Help:      "Map data requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LayerCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_cache_total",
			Help:      "Server-side vector cache lookups by result.",
		}, []string{"result"}),
		ReprojectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprojection_failures_total",
			Help:      "Coordinate pairs returned untransformed after a projection error.",
		}),
		StyleFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "style_fetch_failures_total",
			Help:      "Style override fetches that failed and left a layer on its defaults.",
		}),
		MapSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "map_sessions",
			Help:      "Map sessions currently held by the server.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LayerRequests,
		m.LayerCache,
		m.ReprojectionErrors,
		m.StyleFetchFailures,
		m.MapSessions,
	}
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

// LayerRequest counts one map data request.
func (m *Metrics) LayerRequest(kind, outcome string) {
	m.LayerRequests.WithLabelValues(kind, outcome).Inc()
}

// CacheLookup counts one server cache lookup.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.LayerCache.WithLabelValues(result).Inc()
}

// ReprojectionFailures adds n failed coordinate transforms.
func (m *Metrics) ReprojectionFailures(n int) {
	m.ReprojectionErrors.Add(float64(n))
}

// StyleFetchFailed counts a swallowed style fetch error. Its signature
// matches layer.StyleFailureFunc.
func (m *Metrics) StyleFetchFailed(string, error) {
	m.StyleFetchFailures.Inc()
}
