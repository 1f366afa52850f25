package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/collab-go/core/metrics"
	"github.com/codewandler/collab-go/core/session"
)

// sessionMetrics implements session.SessionMetrics using Prometheus.
type sessionMetrics struct {
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	mailboxDepth    prometheus.Gauge
	callsInflight   prometheus.Gauge
	connectsTotal   *prometheus.CounterVec
	connState       *prometheus.GaugeVec
	eventsTotal     *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

// NewSessionMetrics creates a Prometheus implementation of SessionMetrics.
func NewSessionMetrics(reg prometheus.Registerer) session.SessionMetrics {
	m := &sessionMetrics{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collab_session_command_duration_seconds",
			Help:    "Command round-trip time in seconds",
			Buckets: defaultBuckets,
		}, []string{"op"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_session_commands_total",
			Help: "Total number of commands completed",
		}, []string{"op", "success"}),

		mailboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_session_mailbox_depth",
			Help: "Current mailbox queue depth",
		}),

		callsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_session_calls_inflight",
			Help: "Number of concurrent remote calls",
		}),

		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_session_connects_total",
			Help: "Total number of connection attempts",
		}, []string{"success"}),

		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collab_session_conn_state",
			Help: "Connection state (1 for the current phase, 0 otherwise)",
		}, []string{"phase"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_session_events_total",
			Help: "Total number of server events published",
		}, []string{"kind"}),

		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_session_events_dropped_total",
			Help: "Total number of server events dropped on slow subscribers",
		}),
	}

	reg.MustRegister(
		m.commandDuration,
		m.commandsTotal,
		m.mailboxDepth,
		m.callsInflight,
		m.connectsTotal,
		m.connState,
		m.eventsTotal,
		m.eventsDropped,
	)

	return m
}

var phases = []string{"disconnected", "connecting", "connected", "error"}

func (m *sessionMetrics) CommandDuration(op string) metrics.Timer {
	return newTimer(m.commandDuration.WithLabelValues(op))
}

func (m *sessionMetrics) CommandCompleted(op string, success bool) {
	m.commandsTotal.WithLabelValues(op, boolToStr(success)).Inc()
}

func (m *sessionMetrics) MailboxDepth(depth int) {
	m.mailboxDepth.Set(float64(depth))
}

func (m *sessionMetrics) CallsInflight(count int) {
	m.callsInflight.Set(float64(count))
}

func (m *sessionMetrics) ConnectCompleted(success bool) {
	m.connectsTotal.WithLabelValues(boolToStr(success)).Inc()
}

func (m *sessionMetrics) StateChanged(phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		m.connState.WithLabelValues(p).Set(v)
	}
}

func (m *sessionMetrics) EventPublished(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *sessionMetrics) EventsDropped(count int) {
	m.eventsDropped.Add(float64(count))
}

var _ session.SessionMetrics = (*sessionMetrics)(nil)
