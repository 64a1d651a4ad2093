// Package metric holds the bot's Prometheus collectors.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "synarere"

// Metrics is a private registry and the collectors the core updates.
type Metrics struct {
	registry *prometheus.Registry

	LinesReceived   *prometheus.CounterVec
	LinesSent       *prometheus.CounterVec
	ParseFailures   *prometheus.CounterVec
	FramerOverflows *prometheus.CounterVec
	PartialWrites   *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	TimerFirings    prometheus.Counter
	Sessions        prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "lines_received_total",
				Help:      "Protocol lines received",
			},
			[]string{"network"},
		),
		LinesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "lines_sent_total",
				Help:      "Protocol lines fully written",
			},
			[]string{"network"},
		),
		ParseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "parse_failures_total",
				Help:      "Received lines that did not parse",
			},
			[]string{"network"},
		),
		FramerOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "framer_overflows_total",
				Help:      "Unterminated input discarded for exceeding the carry limit",
			},
			[]string{"network"},
		),
		PartialWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "partial_writes_total",
				Help:      "Writes that sent only part of a line",
			},
			[]string{"network"},
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "reconnects_total",
				Help:      "Reconnect attempts scheduled",
			},
			[]string{"network"},
		),
		HandlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "handler",
				Name:      "failures_total",
				Help:      "Isolated handler errors and panics",
			},
			[]string{"source"},
		),
		TimerFirings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timer",
				Name:      "firings_total",
				Help:      "Timer callbacks invoked",
			},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Sessions in the active set",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LinesReceived,
		m.LinesSent,
		m.ParseFailures,
		m.FramerOverflows,
		m.PartialWrites,
		m.Reconnects,
		m.HandlerFailures,
		m.TimerFirings,
		m.Sessions,
	)
	return m
}

// Registerer is where other components (the worker pool) add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Gatherer exposes the registry for serving and tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
