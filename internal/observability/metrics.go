package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los recorders del servicio. Un *Metrics nil no registra nada.
type Metrics struct {
	purchases      *prometheus.CounterVec
	inventoryOps   *prometheus.CounterVec
	lockWait       prometheus.Histogram
	queueEntries   prometheus.Gauge
	notifyFailures prometheus.Counter
	compensations  *prometheus.CounterVec
	outbox         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		purchases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "randombox_purchase_attempts_total",
			Help: "Purchase attempts by outcome.",
		}, []string{"outcome"}),
		inventoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "randombox_inventory_operations_total",
			Help: "Inventory ledger operations by op and result.",
		}, []string{"op", "result"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "randombox_inventory_lock_wait_seconds",
			Help:    "Time spent waiting for a lot lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		queueEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "randombox_queue_entries",
			Help: "Users currently waiting across all admission queues.",
		}),
		notifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "randombox_notifications_failed_total",
			Help: "Notifications that could not be handed to the outbox.",
		}),
		compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "randombox_compensations_total",
			Help: "Compensating actions run after a failed purchase or cancellation.",
		}, []string{"result"}),
		outbox: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "randombox_outbox_messages_total",
			Help: "Outbox messages handed to the event bus, by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) PurchaseOutcome(outcome string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InventoryOp(op, result string) {
	if m == nil {
		return
	}
	m.inventoryOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) QueueEntriesDelta(delta int) {
	if m == nil {
		return
	}
	m.queueEntries.Add(float64(delta))
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) Compensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxMessage(result string) {
	if m == nil {
		return
	}
	m.outbox.WithLabelValues(result).Inc()
}
