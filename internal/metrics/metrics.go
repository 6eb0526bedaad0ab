// Package metrics exposes prometheus collectors for the network layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

const (
	namespace = "bsc"
	subsystem = "netlayer"
)

// Metrics holds the network layer collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connectionsActive  prometheus.Gauge
	connectionAttempts *prometheus.CounterVec
	messagesSent       prometheus.Counter
	bytesSent          prometheus.Counter
	messagesReceived   prometheus.Counter
	bytesReceived      prometheus.Counter
	messagesDropped    *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Number of registered WebSocket connections",
		}),
		connectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_attempts_total",
			Help:      "Connection attempts by scheme and result",
		}, []string{"scheme", "result"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Messages written to peers",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Payload bytes written to peers",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Messages delivered to the poller",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Payload bytes delivered to the poller",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Messages discarded before delivery",
		}, []string{"reason"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Errors relayed to callers by code",
		}, []string{"code"}),
	}

	collectors := []prometheus.Collector{
		m.connectionsActive,
		m.connectionAttempts,
		m.messagesSent,
		m.bytesSent,
		m.messagesReceived,
		m.bytesReceived,
		m.messagesDropped,
		m.errorsTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ConnectionAttempt counts one Connect by scheme and outcome.
func (m *Metrics) ConnectionAttempt(scheme string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connectionAttempts.WithLabelValues(scheme, result).Inc()
}

// SetConnections sets the number of registered connections.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(n))
}

// MessageSent records one written message of n bytes.
func (m *Metrics) MessageSent(n int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(n))
}

// MessageReceived records one delivered message of n bytes.
func (m *Metrics) MessageReceived(n int) {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

// MessageDropped records one discarded message.
func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// Error records err by its code. Nil errors are ignored.
func (m *Metrics) Error(err error) {
	if m == nil || err == nil {
		return
	}
	m.errorsTotal.WithLabelValues(wserr.CodeOf(err).String()).Inc()
}
