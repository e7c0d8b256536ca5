package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the rendezvous server.
// Declared in one package so the admin listener can expose everything from
// a single registry without coupling the domain packages to prometheus.
//
// Naming convention: namespace_subsystem_name
// - namespace: pmms (application-level grouping)
// - subsystem: session, room, request, probe (feature-level grouping)
// - name: specific metric (sessions_active, handled_total, etc.)
//
// Metric Types:
// - Gauge: Current state (sessions, rooms)
// - Counter: Cumulative events (connections accepted, requests handled)
// - Histogram: Latency distributions (request handling time)

var (
	// ActiveSessions tracks the current number of connected clients (Gauge - current state)
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pmms",
		Subsystem: "session",
		Name:      "sessions_active",
		Help:      "Current number of connected client sessions",
	})

	// AcceptedConnections counts every accepted TCP connection, including
	// ones rejected by the accept rate limiter (Counter - cumulative)
	AcceptedConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pmms",
		Subsystem: "session",
		Name:      "connections_accepted_total",
		Help:      "Total accepted TCP connections by admission outcome",
	}, []string{"outcome"})

	// SessionTerminations counts session teardowns by their final
	// classification (Counter - cumulative)
	SessionTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pmms",
		Subsystem: "session",
		Name:      "terminations_total",
		Help:      "Total session terminations by error kind",
	}, []string{"kind"})

	// ActiveRooms tracks the current number of live rooms (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pmms",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of live rooms",
	})

	// RequestsHandled counts protocol requests by type and status
	// (CounterVec - cumulative)
	RequestsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pmms",
		Subsystem: "request",
		Name:      "handled_total",
		Help:      "Total protocol requests handled by message type and status",
	}, []string{"message_type", "status"})

	// RequestDuration tracks time from body decode to reply write
	// (HistogramVec - latency distribution)
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pmms",
		Subsystem: "request",
		Name:      "handling_seconds",
		Help:      "Time spent handling protocol requests",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"message_type"})

	// ProbeAttempts counts connectivity probes by protocol and outcome
	// (CounterVec - cumulative)
	ProbeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pmms",
		Subsystem: "probe",
		Name:      "attempts_total",
		Help:      "Total connectivity probe attempts by protocol and outcome",
	}, []string{"protocol", "outcome"})
)

func IncSession() {
	ActiveSessions.Inc()
}

func DecSession() {
	ActiveSessions.Dec()
}
