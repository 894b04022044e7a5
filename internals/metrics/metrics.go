// Package metrics provides metrics collection and reporting for the relay.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported for messages that are acknowledged without being relayed.
const (
	DropInvalidPayload = "invalid_payload"
	DropEncodeFailed   = "encode_failed"
)

// Metrics tracks relay counters. Every counter is kept as an atomic value for
// the JSON snapshot and mirrored into a Prometheus collector.
type Metrics struct {
	received      uint64
	relayed       uint64
	dropped       uint64
	rejected      uint64
	fanoutFailed  uint64
	connects      uint64
	connectFailed uint64
	teardowns     uint64
	subscribers   int64

	promReceived     prometheus.Counter
	promRelayed      prometheus.Counter
	promDropped      *prometheus.CounterVec
	promRejected     prometheus.Counter
	promFanoutFailed prometheus.Counter
	promConnects     *prometheus.CounterVec
	promTeardowns    prometheus.Counter
	promSubscribers  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance and registers its collectors on reg.
// A nil reg keeps the collectors unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		promReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_received_total",
			Help:      "Broker deliveries observed by the consumer.",
		}),
		promRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_relayed_total",
			Help:      "Events recorded into history and broadcast to subscribers.",
		}),
		promDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_dropped_total",
			Help:      "Deliveries acknowledged without being relayed.",
		}, []string{"reason"}),
		promRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_rejected_total",
			Help:      "Deliveries negatively acknowledged for redelivery.",
		}),
		promFanoutFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "fanout_failures_total",
			Help:      "Per-subscriber delivery failures during broadcast.",
		}),
		promConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "broker_connects_total",
			Help:      "Broker connect attempts by outcome.",
		}, []string{"outcome"}),
		promTeardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "teardowns_total",
			Help:      "Completed teardown sequences.",
		}),
		promSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "subscribers",
			Help:      "Currently registered stream subscribers.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.promReceived,
			m.promRelayed,
			m.promDropped,
			m.promRejected,
			m.promFanoutFailed,
			m.promConnects,
			m.promTeardowns,
			m.promSubscribers,
		)
	}
	return m
}

// IncReceived counts one broker delivery.
func (m *Metrics) IncReceived() {
	atomic.AddUint64(&m.received, 1)
	m.promReceived.Inc()
}

// IncRelayed counts one event recorded and broadcast.
func (m *Metrics) IncRelayed() {
	atomic.AddUint64(&m.relayed, 1)
	m.promRelayed.Inc()
}

// IncDropped counts one delivery acknowledged without being relayed.
func (m *Metrics) IncDropped(reason string) {
	atomic.AddUint64(&m.dropped, 1)
	m.promDropped.WithLabelValues(reason).Inc()
}

// IncRejected counts one delivery negatively acknowledged.
func (m *Metrics) IncRejected() {
	atomic.AddUint64(&m.rejected, 1)
	m.promRejected.Inc()
}

// IncFanoutFailed counts n failed sink deliveries.
func (m *Metrics) IncFanoutFailed(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&m.fanoutFailed, uint64(n))
	m.promFanoutFailed.Add(float64(n))
}

// IncConnect counts one connect attempt.
func (m *Metrics) IncConnect(ok bool) {
	if ok {
		atomic.AddUint64(&m.connects, 1)
		m.promConnects.WithLabelValues("success").Inc()
		return
	}
	atomic.AddUint64(&m.connectFailed, 1)
	m.promConnects.WithLabelValues("failure").Inc()
}

// IncTeardowns counts one completed teardown.
func (m *Metrics) IncTeardowns() {
	atomic.AddUint64(&m.teardowns, 1)
	m.promTeardowns.Inc()
}

// SetSubscribers records the current subscriber count.
func (m *Metrics) SetSubscribers(n int) {
	if n < 0 {
		n = 0
	}
	atomic.StoreInt64(&m.subscribers, int64(n))
	m.promSubscribers.Set(float64(n))
}

// Snapshot returns a copy of the current metrics suitable for JSON serialization.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"messages": map[string]interface{}{
			"received": atomic.LoadUint64(&m.received),
			"relayed":  atomic.LoadUint64(&m.relayed),
			"dropped":  atomic.LoadUint64(&m.dropped),
			"rejected": atomic.LoadUint64(&m.rejected),
		},
		"fanout_failures": atomic.LoadUint64(&m.fanoutFailed),
		"broker": map[string]interface{}{
			"connects":         atomic.LoadUint64(&m.connects),
			"connect_failures": atomic.LoadUint64(&m.connectFailed),
			"teardowns":        atomic.LoadUint64(&m.teardowns),
		},
		"subscribers": atomic.LoadInt64(&m.subscribers),
	}
}

// Received returns the number of observed deliveries.
func (m *Metrics) Received() uint64 { return atomic.LoadUint64(&m.received) }

// Relayed returns the number of relayed events.
func (m *Metrics) Relayed() uint64 { return atomic.LoadUint64(&m.relayed) }

// Dropped returns the number of dropped deliveries.
func (m *Metrics) Dropped() uint64 { return atomic.LoadUint64(&m.dropped) }

// Rejected returns the number of rejected deliveries.
func (m *Metrics) Rejected() uint64 { return atomic.LoadUint64(&m.rejected) }

// Teardowns returns the number of completed teardowns.
func (m *Metrics) Teardowns() uint64 { return atomic.LoadUint64(&m.teardowns) }
