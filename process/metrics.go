package process

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments a Context's connection cache and dispatch path. It
// implements connpool.Metrics and is otherwise consulted directly by
// Context. Every Context builds its own Metrics backed by a private
// registry, so instrumentation is always on and never collides with an
// application's own default Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	messagesSent      *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
}

// NewMetrics builds a Metrics with its own private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Outbound TCP streams opened by the connection cache.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Outbound TCP streams closed, observed by the connection cache.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages handed to the wire codec or the local short-circuit.",
		}, []string{"method"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Process-originating POSTs delivered to a mailbox.",
		}, []string{"mailbox"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Requests answered 404: unknown actor, unknown mailbox, or non-process sender.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connectionsOpened, m.connectionsClosed, m.messagesSent, m.messagesReceived, m.messagesDropped)
	return m
}

// ConnectionOpened implements connpool.Metrics.
func (m *Metrics) ConnectionOpened() { m.connectionsOpened.Inc() }

// ConnectionClosed implements connpool.Metrics.
func (m *Metrics) ConnectionClosed() { m.connectionsClosed.Inc() }

func (m *Metrics) sent(method string)       { m.messagesSent.WithLabelValues(method).Inc() }
func (m *Metrics) received(mailbox string)  { m.messagesReceived.WithLabelValues(mailbox).Inc() }
func (m *Metrics) dropped(reason string)    { m.messagesDropped.WithLabelValues(reason).Inc() }

// Handler exposes the metrics in Prometheus text format. The caller decides
// where to mount it; the process HTTP server itself only ever answers
// actor routes and mailboxes.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
