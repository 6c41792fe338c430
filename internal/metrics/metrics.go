package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and embedded uses never collide
// with the global one. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	analyses       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	signalRequests *prometheus.CounterVec
	refreshEntries *prometheus.CounterVec
	duration       prometheus.Histogram
}

var durationBuckets = []float64{
	0.005, 0.025, 0.1, // cache hits
	0.25, 0.5, 1, // local signals only
	2.5, 5, 10, 30, // threat-intel round trips
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "urlguard_analyses_total",
			Help: "URL analyses by final verdict and whether the reputation cache answered",
		}, []string{"verdict", "cached"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "urlguard_cache_lookups_total",
			Help: "Reputation cache lookups by result (whitelist, blacklist, miss, error)",
		}, []string{"result"}),
		signalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "urlguard_signal_requests_total",
			Help: "Signal gatherer calls by gatherer and outcome",
		}, []string{"gatherer", "outcome"}),
		refreshEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "urlguard_refresh_entries_total",
			Help: "Entries re-analysed by bulk refresh, by outcome",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "urlguard_analysis_duration_seconds",
			Help:    "End-to-end analysis latency",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) ObserveAnalysis(verdict string, cached bool, took time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(verdict, strconv.FormatBool(cached)).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SignalRequest(gatherer, outcome string) {
	if m == nil {
		return
	}
	m.signalRequests.WithLabelValues(gatherer, outcome).Inc()
}

func (m *Metrics) RefreshEntry(outcome string) {
	if m == nil {
		return
	}
	m.refreshEntries.WithLabelValues(outcome).Inc()
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
