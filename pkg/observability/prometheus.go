package observability

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxLabelLen = 64

// PrometheusMetrics implements Metrics on a private Prometheus registry.
// Vectors are created on first use; the label set of a metric is fixed by
// the tags passed the first time it is recorded.
type PrometheusMetrics struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a collector with Go and process collectors registered.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		namespace:  namespace,
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "counsel counter " + name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = vec
	}
	m.mu.Unlock()

	if c, err := vec.GetMetricWithLabelValues(values...); err == nil {
		c.Add(float64(value))
	}
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "counsel gauge " + name,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	if g, err := vec.GetMetricWithLabelValues(values...); err == nil {
		g.Set(value)
	}
}

func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      "counsel histogram " + name,
			Buckets:   prometheus.DefBuckets,
		}, keys)
		if err := m.registry.Register(vec); err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	if h, err := vec.GetMetricWithLabelValues(values...); err == nil {
		h.Observe(value)
	}
}

// Timing records the duration in seconds on a histogram.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.Histogram(name, duration.Seconds(), tags...)
}

func splitTags(tags []Tag) ([]string, []string) {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i] = t.Key
		values[i] = sanitizeLabel(t.Value)
	}
	return keys, values
}

func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

var _ Metrics = (*PrometheusMetrics)(nil)
