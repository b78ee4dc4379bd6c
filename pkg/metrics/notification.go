package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NotificationMetrics instruments the notification adapter: connection
// lifecycle, command dispatch, presence fan-out and auth outcomes.
type NotificationMetrics struct {
	activeConnections prometheus.Gauge
	sessionsOnline    prometheus.Gauge
	commandsTotal     *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	fanoutLines       prometheus.Counter
	authFailures      prometheus.Counter
	displacements     prometheus.Counter
	stalledSessions   prometheus.Counter
	queueDepth        prometheus.Histogram
}

// NewNotificationMetrics creates the Prometheus-backed adapter metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewNotificationMetrics() *NotificationMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &NotificationMetrics{
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "msnpd_active_connections",
				Help: "Current number of accepted TCP connections",
			},
		),
		sessionsOnline: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "msnpd_sessions_online",
				Help: "Current number of authenticated sessions in the registry",
			},
		),
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msnpd_commands_total",
				Help: "Total client commands dispatched, by verb",
			},
			[]string{"verb"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "msnpd_protocol_errors_total",
				Help: "Total numeric error replies sent, by code",
			},
			[]string{"code"},
		),
		fanoutLines: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "msnpd_fanout_lines_total",
				Help: "Total presence notification lines enqueued to subscribers",
			},
		),
		authFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "msnpd_auth_failures_total",
				Help: "Total failed challenge responses",
			},
		),
		displacements: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "msnpd_displaced_sessions_total",
				Help: "Total sessions displaced by a newer login for the same identity",
			},
		),
		stalledSessions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "msnpd_stalled_sessions_total",
				Help: "Total sessions dropped because their outbound queue stalled",
			},
		),
		queueDepth: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "msnpd_outbound_queue_depth",
				Help:    "Outbound queue depth sampled at enqueue time",
				Buckets: []float64{0, 1, 4, 16, 64, 128, 192, 256},
			},
		),
	}
}

func (m *NotificationMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *NotificationMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *NotificationMetrics) SessionOnline() {
	if m == nil {
		return
	}
	m.sessionsOnline.Inc()
}

func (m *NotificationMetrics) SessionOffline() {
	if m == nil {
		return
	}
	m.sessionsOnline.Dec()
}

func (m *NotificationMetrics) RecordCommand(verb string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(verb).Inc()
}

func (m *NotificationMetrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

func (m *NotificationMetrics) RecordFanout(lines int) {
	if m == nil {
		return
	}
	m.fanoutLines.Add(float64(lines))
}

func (m *NotificationMetrics) RecordAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

func (m *NotificationMetrics) RecordDisplacement() {
	if m == nil {
		return
	}
	m.displacements.Inc()
}

func (m *NotificationMetrics) RecordStalledSession() {
	if m == nil {
		return
	}
	m.stalledSessions.Inc()
}

func (m *NotificationMetrics) ObserveQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Observe(float64(depth))
}
