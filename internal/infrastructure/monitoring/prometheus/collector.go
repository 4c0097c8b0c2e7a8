// Package prometheus wraps client_golang behind small interfaces so that
// application code can record metrics without touching the registry, and so
// that a disabled metrics setup degrades to no-ops.
package prometheus

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
)

// MetricsCollector registers metric vectors and serves the exposition.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type Histogram interface {
	Observe(value float64)
}

// CollectorConfig configures NewMetricsCollector. Namespace prefixes every
// metric name.
type CollectorConfig struct {
	Namespace            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
}

// prometheusCollector owns a private registry. Registering the same name
// twice returns the first vector; registering it with another type yields
// a no-op vector and a warning.
type prometheusCollector struct {
	namespace string
	registry  *prometheus.Registry
	logger    logging.Logger

	mu   sync.Mutex
	vecs map[string]prometheus.Collector
}

// NewMetricsCollector creates a collector backed by a fresh registry.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("metrics namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		registry.MustRegister(collectors.NewGoCollector())
	}

	return &prometheusCollector{
		namespace: cfg.Namespace,
		registry:  registry,
		logger:    logger,
		vecs:      make(map[string]prometheus.Collector),
	}, nil
}

func (c *prometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// registerVec registers vec under name, or returns the vector already
// registered there. ok is false when name is taken by another type or the
// registry refused the vector.
func registerVec[V prometheus.Collector](c *prometheusCollector, name string, vec V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.vecs[name]; found {
		v, sameType := existing.(V)
		if !sameType {
			c.logger.Warn("metric already registered with another type", logging.String("name", name))
		}
		return v, sameType
	}
	if err := c.registry.Register(vec); err != nil {
		c.logger.Error("metric registration failed", logging.String("name", name), logging.Err(err))
		var zero V
		return zero, false
	}
	c.vecs[name] = vec
	return vec, true
}

func (c *prometheusCollector) RegisterCounter(name, help string, labels ...string) CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: c.namespace, Name: name, Help: help}, labels)
	if v, ok := registerVec(c, name, vec); ok {
		return counterVec{v}
	}
	return noopCounters{}
}

func (c *prometheusCollector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: c.namespace, Name: name, Help: help}, labels)
	if v, ok := registerVec(c, name, vec); ok {
		return gaugeVec{v}
	}
	return noopGauges{}
}

// RegisterHistogram uses prometheus.DefBuckets when buckets is nil.
func (c *prometheusCollector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	if v, ok := registerVec(c, name, vec); ok {
		return histogramVec{v}
	}
	return noopHistograms{}
}

type counterVec struct{ *prometheus.CounterVec }

func (v counterVec) WithLabelValues(lvs ...string) Counter { return v.CounterVec.WithLabelValues(lvs...) }

type gaugeVec struct{ *prometheus.GaugeVec }

func (v gaugeVec) WithLabelValues(lvs ...string) Gauge { return v.GaugeVec.WithLabelValues(lvs...) }

type histogramVec struct{ *prometheus.HistogramVec }

func (v histogramVec) WithLabelValues(lvs ...string) Histogram {
	return v.HistogramVec.WithLabelValues(lvs...)
}

// No-op vectors stand in when metrics are disabled or a registration failed.
type (
	noopCounters   struct{}
	noopGauges     struct{}
	noopHistograms struct{}
)

func (noopCounters) WithLabelValues(...string) Counter     { return noopMetric{} }
func (noopGauges) WithLabelValues(...string) Gauge         { return noopMetric{} }
func (noopHistograms) WithLabelValues(...string) Histogram { return noopMetric{} }

type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Dec()            {}
func (noopMetric) Add(float64)     {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Observe(float64) {}

type noopCollector struct{}

// NewNoopCollector returns a MetricsCollector whose metrics do nothing and
// whose handler answers 204.
func NewNoopCollector() MetricsCollector { return noopCollector{} }

func (noopCollector) RegisterCounter(string, string, ...string) CounterVec { return noopCounters{} }
func (noopCollector) RegisterGauge(string, string, ...string) GaugeVec     { return noopGauges{} }
func (noopCollector) RegisterHistogram(string, string, []float64, ...string) HistogramVec {
	return noopHistograms{}
}
func (noopCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}
