// Package metrics exposes relay activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomrelay"

// Metrics implements relay.Observer on top of Prometheus collectors. Room
// identifiers are caller-supplied and unbounded, so they are never used as
// label values.
type Metrics struct {
	gatherer prometheus.Gatherer

	rooms          prometheus.Gauge
	members        prometheus.Gauge
	roomsOpened    prometheus.Counter
	messages       prometheus.Counter
	sendFailures   prometheus.Counter
	sessions       *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New registers the relay collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the relay collectors on reg and serves metrics
// from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms that currently have at least one member.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Connections currently joined to a room.",
		}),
		roomsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_opened_total",
			Help:      "Rooms created by a first join.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages broadcast to a non-empty room.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Per-member sends that failed during a broadcast.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running.",
		}),
	}

	reg.MustRegister(
		m.rooms,
		m.members,
		m.roomsOpened,
		m.messages,
		m.sendFailures,
		m.sessions,
		m.activeSessions,
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RoomOpened(string) {
	m.rooms.Inc()
	m.roomsOpened.Inc()
}

func (m *Metrics) RoomClosed(string)       { m.rooms.Dec() }
func (m *Metrics) MemberJoined(string)     { m.members.Inc() }
func (m *Metrics) MemberLeft(string)       { m.members.Dec() }
func (m *Metrics) MessageBroadcast(string) { m.messages.Inc() }
func (m *Metrics) SendFailed(string)       { m.sendFailures.Inc() }

// SessionStarted and SessionEnded track session lifetimes. outcome is a
// short fixed word such as "disconnect", "shutdown" or "rejected".
func (m *Metrics) SessionStarted() { m.activeSessions.Inc() }

func (m *Metrics) SessionEnded(outcome string) {
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
}
