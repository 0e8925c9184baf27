// Package metrics exposes the anchor's runtime counters and gauges to
// Prometheus, following the promauto/CounterVec idiom used elsewhere in the
// pack (see network.handshakeCounter and friends).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/providenetwork/zksync/internal/anchor"
)

// Metrics implements anchor.AnchorMetrics against the default Prometheus
// registry.
type Metrics struct {
	queueDepth         prometheus.Gauge
	txBroadcast        prometheus.Counter
	txReplaced         prometheus.Counter
	operationCommitted *prometheus.CounterVec
	txFailed           prometheus.Counter
}

// New registers the anchor's metrics under the given namespace (e.g. the
// service name) against the default Prometheus registry and returns a
// Metrics ready to hand to anchor.New.
func New(namespace string) *Metrics {
	return NewWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer is like New but registers against reg instead of the
// default registry, so tests (and soak runs wanting isolation) can avoid
// colliding with other registrations in the same process.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anchor_pending_queue_depth",
			Help:      "number of operations currently queued by the anchor, including the one being driven",
		}),
		txBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_tx_broadcast_total",
			Help:      "number of operations for which the anchor broadcast a first settlement-chain transaction (replacements are counted in anchor_tx_replaced_total)",
		}),
		txReplaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_tx_replaced_total",
			Help:      "number of stuck or failed transactions replaced with a higher-gas-price resend",
		}),
		operationCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_operation_committed_total",
			Help:      "number of operations the anchor has observed committed on the settlement chain",
		}, []string{"action"}),
		txFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchor_tx_failed_total",
			Help:      "number of times a drive found a broadcast transaction reported as failed (a failed attempt is counted again on each later drive of its operation)",
		}),
	}
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) TxBroadcast() {
	m.txBroadcast.Inc()
}

func (m *Metrics) TxReplaced() {
	m.txReplaced.Inc()
}

func (m *Metrics) OperationCommitted(action anchor.ActionType) {
	m.operationCommitted.WithLabelValues(action.String()).Inc()
}

func (m *Metrics) TxFailed() {
	m.txFailed.Inc()
}

var _ anchor.AnchorMetrics = (*Metrics)(nil)
