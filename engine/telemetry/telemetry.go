// Package telemetry exports circuit recompute statistics to Prometheus.
package telemetry

import (
	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// CircuitMetrics implements circuit.Observer.
type CircuitMetrics struct {
	recomputes  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	changes     prometheus.Counter
	components  prometheus.Gauge
	connections prometheus.Gauge
	loops       prometheus.Gauge
	live        prometheus.Gauge
	powered     prometheus.Gauge
}

var _ circuit.Observer = (*CircuitMetrics)(nil)

// NewCircuitMetrics registers the circuit metric families on reg.
func NewCircuitMetrics(reg *metrics.Registry) *CircuitMetrics {
	return &CircuitMetrics{
		recomputes: reg.Counter("circuit_recomputes_total",
			"Power recomputes, by triggering operation.", "op"),
		duration: reg.Histogram("circuit_recompute_duration_seconds",
			"Time spent in power propagation and dispatch.", nil, "op"),
		changes: reg.Counter("circuit_power_changes_total",
			"Energized transitions delivered to listeners and watchers.").WithLabelValues(),
		components: reg.Gauge("circuit_components",
			"Registered components.").WithLabelValues(),
		connections: reg.Gauge("circuit_connections",
			"Connections between components.").WithLabelValues(),
		loops: reg.Gauge("circuit_loops",
			"Biconnected blocks of three or more components.").WithLabelValues(),
		live: reg.Gauge("circuit_live_loops",
			"Loops holding a battery once open switches are removed.").WithLabelValues(),
		powered: reg.Gauge("circuit_powered_components",
			"Components energized after the last recompute.").WithLabelValues(),
	}
}

// Recomputed records one recompute.
func (m *CircuitMetrics) Recomputed(s circuit.Stats) {
	m.recomputes.WithLabelValues(s.Op).Inc()
	m.duration.WithLabelValues(s.Op).Observe(s.Duration.Seconds())
	m.changes.Add(float64(s.Changes))
	m.components.Set(float64(s.Components))
	m.connections.Set(float64(s.Connections))
	m.loops.Set(float64(s.Loops))
	m.live.Set(float64(s.Live))
	m.powered.Set(float64(s.Powered))
}
