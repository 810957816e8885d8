// Package metrics exposes the messenger's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeFailed    = "failed"
)

// Metrics groups the collectors updated by the chat layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	OnlineSessions       prometheus.Gauge
	MessagesPersisted    prometheus.Counter
	Deliveries           *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	RejectedConnections  *prometheus.CounterVec
	RateLimitedEvents    prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "messenger_online_sessions",
			Help: "Number of active chat sessions",
		}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_persisted_total",
			Help: "Total number of messages written to the store",
		}),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messenger_deliveries_total",
				Help: "Realtime message deliveries by outcome",
			},
			[]string{"outcome"},
		),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_notification_failures_total",
			Help: "Notifications that could not be recorded or pushed",
		}),
		RejectedConnections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messenger_rejected_connections_total",
				Help: "Connections closed during the handshake, by reason",
			},
			[]string{"reason"},
		),
		RateLimitedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_rate_limited_events_total",
			Help: "Inbound events dropped by the per-connection limiter",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OnlineSessions,
			m.MessagesPersisted,
			m.Deliveries,
			m.NotificationFailures,
			m.RejectedConnections,
			m.RateLimitedEvents,
		)
	}
	return m
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.OnlineSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.OnlineSessions.Dec()
	}
}

func (m *Metrics) MessagePersisted() {
	if m != nil {
		m.MessagesPersisted.Inc()
	}
}

func (m *Metrics) Delivery(outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) NotificationFailed() {
	if m != nil {
		m.NotificationFailures.Inc()
	}
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m != nil {
		m.RejectedConnections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) EventRateLimited() {
	if m != nil {
		m.RateLimitedEvents.Inc()
	}
}
