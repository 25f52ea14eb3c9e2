package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "travelgallery"

// Result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultCleared = "cleared"
)

// Metrics holds the service collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	photos       *prometheus.CounterVec
	gatewayCalls *prometheus.CounterVec
	gatewayWait  *prometheus.HistogramVec
	recomputes   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		photos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_ingested_total",
			Help:      "Uploaded files processed by the ingestion pipeline, by result.",
		}, []string{"result"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_calls_total",
			Help:      "Outbound calls to external services, by service and result.",
		}, []string{"service", "result"}),
		gatewayWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_throttle_wait_seconds",
			Help:      "Time callers spent waiting for the per-service rate limit.",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"service"}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_recomputes_total",
			Help:      "Route geometry recomputations, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.photos, m.gatewayCalls, m.gatewayWait, m.recomputes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackJobs exposes the number of jobs held by the registry.
func (m *Metrics) TrackJobs(count func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_tracked",
		Help:      "Ingestion jobs currently held in memory.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) PhotoIngested(result string) {
	if m == nil {
		return
	}
	m.photos.WithLabelValues(result).Inc()
}

func (m *Metrics) GatewayCall(service, result string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(service, result).Inc()
}

func (m *Metrics) ThrottleWait(service string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayWait.WithLabelValues(service).Observe(seconds)
}

func (m *Metrics) Recompute(result string) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
