// Package metrics wraps a dedicated Prometheus registry with get-or-create
// accessors so independent packages can share metric families by name.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets are the default histogram buckets (in seconds). Circuit
// recomputes are sub-millisecond, so the low end is finer than Prometheus'.
var DefaultBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Registry holds named metric families.
type Registry struct {
	mu    sync.Mutex
	reg   *prometheus.Registry
	named map[string]prometheus.Collector
}

// New creates a Registry with the Go runtime and process collectors installed.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg, named: make(map[string]prometheus.Collector)}
}

// Counter returns (or creates) a counter family.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	return getOrRegister(r, name, func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	})
}

// Gauge returns (or creates) a gauge family.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return getOrRegister(r, name, func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	})
}

// Histogram returns (or creates) a histogram family. nil buckets selects
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return getOrRegister(r, name, func() *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	})
}

// getOrRegister returns the collector already registered under name, or
// registers the one built by mk. A name reused with a different metric type
// panics, as it would with prometheus.MustRegister.
func getOrRegister[C prometheus.Collector](r *Registry, name string, mk func() C) C {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.named[name]; ok {
		c, ok := existing.(C)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered with a different type", name))
		}
		return c
	}
	c := mk()
	if err := r.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(fmt.Sprintf("metrics: register %s: %v", name, err))
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered with a different type", name))
		}
		c = existing
	}
	r.named[name] = c
	return c
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an http.Handler that serves the registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
