// Package metrics exposes rig counters and gauges in Prometheus format.
//
// All collectors live on a private registry so tests and multiple
// controllers in one process do not collide on the default registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/robojar-core/internal/device"
)

const namespace = "robojar"

// Metrics holds the rig collectors.
type Metrics struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	commands       *prometheus.CounterVec
	ledgerFailures prometheus.Counter
	droppedEvents  prometheus.Counter
	deviceState    *prometheus.GaugeVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: kind, state (the state entered)
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "transitions_total",
			Help:      "Applied state transitions by device kind and entered state",
		}, []string{"kind", "state"}),

		// Labels: source (api, mqtt), result (applied, unchanged, rejected, error)
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "executed_total",
			Help:      "Commands executed by source and result",
		}, []string{"source", "result"}),

		ledgerFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_failures_total",
			Help:      "Ledger writes that failed after the state was committed",
		}),

		droppedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Transition events dropped because the bus was full",
		}),

		// 1 for the device's current state, 0 for the others.
		deviceState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "state",
			Help:      "Current device state (1 = active state)",
		}, []string{"device", "kind", "state"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTransition counts an applied transition and moves the state
// gauge of its device. Other outcomes are ignored; they are counted per
// command by RecordCommand.
func (m *Metrics) ObserveTransition(tr device.Transition) {
	if !tr.Changed() {
		return
	}
	m.transitions.WithLabelValues(string(tr.Kind), string(tr.To)).Inc()
	m.SetDeviceState(tr.Device, tr.Kind, tr.To)
}

// Handle matches the events bus handler signature.
func (m *Metrics) Handle(_ context.Context, tr device.Transition) {
	m.ObserveTransition(tr)
}

// SetDeviceState sets the gauge of current to 1 and every other state of
// kind to 0.
func (m *Metrics) SetDeviceState(name string, kind device.Kind, current device.State) {
	for _, s := range kind.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.deviceState.WithLabelValues(name, string(kind), string(s)).Set(v)
	}
}

// RecordCommand counts one executed command.
func (m *Metrics) RecordCommand(source, result string) {
	m.commands.WithLabelValues(source, result).Inc()
}

// RecordLedgerFailure counts one failed ledger write.
func (m *Metrics) RecordLedgerFailure() {
	m.ledgerFailures.Inc()
}

// RecordDropped counts one event dropped by the bus. Its signature fits
// events.Bus.SetOnDrop.
func (m *Metrics) RecordDropped(device.Transition) {
	m.droppedEvents.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
