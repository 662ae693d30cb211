package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skewmm"

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing, so callers never need to guard.
type Metrics struct {
	requoteLatency prometheus.Histogram
	requotes       prometheus.Counter
	orders         *prometheus.CounterVec
	fills          *prometheus.CounterVec
	taskErrors     *prometheus.CounterVec
	archived       prometheus.Counter
	inventory      prometheus.Gauge
	unrealizedPnL  prometheus.Gauge
	cumulativePnL  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "requote_latency_seconds",
			Help:      "Time from price move detection to replace step completion.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		requotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requotes_total",
			Help:      "Completed requote cycles.",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order placement outcomes by side.",
		}, []string{"side", "outcome"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fills received on the live stream by side.",
		}, []string{"side"}),
		taskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_errors_total",
			Help:      "Errors caught inside each long-lived task.",
		}, []string{"task"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_archived_total",
			Help:      "Trades newly inserted into the trade store.",
		}),
		inventory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory",
			Help:      "Locally tracked signed inventory.",
		}),
		unrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrealized_pnl",
			Help:      "Unrealized PnL of the open position, base currency.",
		}),
		cumulativePnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cumulative_pnl",
			Help:      "Current equity minus initial equity, base currency.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requoteLatency, m.requotes, m.orders, m.fills, m.taskErrors,
			m.archived, m.inventory, m.unrealizedPnL, m.cumulativePnL,
		)
	}
	return m
}

// ObserveRequote records one completed replace step.
func (m *Metrics) ObserveRequote(latency time.Duration) {
	if m == nil {
		return
	}
	m.requotes.Inc()
	m.requoteLatency.Observe(latency.Seconds())
}

// OrderOutcome counts a placement outcome (placed, failed, suppressed, rejected).
func (m *Metrics) OrderOutcome(side, outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(side, outcome).Inc()
}

// Fill counts a fill and updates the inventory gauge.
func (m *Metrics) Fill(side string, inventory float64) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(side).Inc()
	m.inventory.Set(inventory)
}

// TaskError counts an error caught in a task (fills, reconcile, archive, control).
func (m *Metrics) TaskError(task string) {
	if m == nil {
		return
	}
	m.taskErrors.WithLabelValues(task).Inc()
}

// Archived adds newly inserted trades.
func (m *Metrics) Archived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}

// Reconciled sets the gauges after a reconciliation.
func (m *Metrics) Reconciled(inventory, unrealized, cumulative float64) {
	if m == nil {
		return
	}
	m.inventory.Set(inventory)
	m.unrealizedPnL.Set(unrealized)
	m.cumulativePnL.Set(cumulative)
}
