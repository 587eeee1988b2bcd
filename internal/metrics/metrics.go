// Package metrics exposes the bot's Prometheus collectors and the HTTP status server.
package metrics

import (
	"math"
	"net/http"

	"github.com/moznion/go-optional"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

const namespace = "indicator_bot"

var lifecycleStates = []types.LifecycleState{
	types.StateFlat,
	types.StateBuyPending,
	types.StateHeld,
	types.StateSellPending,
}

// Metrics holds all Prometheus collectors for the bot.
// Collectors live in their own registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        prometheus.Counter
	CycleFailuresTotal prometheus.Counter
	DecisionsTotal     *prometheus.CounterVec // labels: decision
	OrdersTotal        *prometheus.CounterVec // labels: side, event
	BrokerErrorsTotal  *prometheus.CounterVec // labels: op, kind
	LastClose          prometheus.Gauge
	Trend              prometheus.Gauge
	Momentum           prometheus.Gauge
	LifecycleState     *prometheus.GaugeVec // labels: state; 1 for the current state
	HeldQuantity       prometheus.Gauge
	CashBalance        prometheus.Gauge
	BreakerState       prometheus.Gauge // 0=closed, 1=open, 2=half-open
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Active trading cycles started",
		}),
		CycleFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Active trading cycles aborted by an error",
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Signal decisions by kind",
		}, []string{"decision"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Order lifecycle events",
		}, []string{"side", "event"}),
		BrokerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_errors_total",
			Help:      "Failed broker calls by operation and kind",
		}, []string{"op", "kind"}),
		LastClose: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_close",
			Help:      "Close of the most recent recorded sample",
		}),
		Trend: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trend",
			Help:      "Current EMA trend value (NaN while undefined)",
		}),
		Momentum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "momentum",
			Help:      "Current RSI momentum value (NaN while undefined)",
		}),
		LifecycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifecycle_state",
			Help:      "1 for the current position/order state",
		}, []string{"state"}),
		HeldQuantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held_quantity",
			Help:      "Quantity of the base asset currently held",
		}),
		CashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash_balance",
			Help:      "Free quote asset balance at the last refresh",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_breaker_state",
			Help:      "Broker circuit breaker state: 0=closed, 1=open, 2=half-open",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleFailuresTotal,
		m.DecisionsTotal,
		m.OrdersTotal,
		m.BrokerErrorsTotal,
		m.LastClose,
		m.Trend,
		m.Momentum,
		m.LifecycleState,
		m.HeldQuantity,
		m.CashBalance,
		m.BreakerState,
	)

	m.SetLifecycleState(types.StateFlat)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSnapshot records the latest indicator values.
func (m *Metrics) ObserveSnapshot(snapshot types.IndicatorSnapshot) {
	m.LastClose.Set(snapshot.Close.InexactFloat64())
	m.Trend.Set(gaugeValue(snapshot.Trend))
	m.Momentum.Set(gaugeValue(snapshot.Momentum))
}

// ObserveTrading records the lifecycle state and balances.
func (m *Metrics) ObserveTrading(snapshot types.TradingSnapshot, balances types.Balances) {
	m.SetLifecycleState(snapshot.State)
	m.HeldQuantity.Set(snapshot.Position.HeldQuantity.InexactFloat64())
	m.CashBalance.Set(balances.Cash.InexactFloat64())
}

// SetLifecycleState sets the state gauge to 1 for state and 0 for the others.
func (m *Metrics) SetLifecycleState(state types.LifecycleState) {
	for _, s := range lifecycleStates {
		value := 0.0
		if s == state {
			value = 1
		}

		m.LifecycleState.WithLabelValues(string(s)).Set(value)
	}
}

// ObserveDecision counts one evaluated decision.
func (m *Metrics) ObserveDecision(decision types.Decision) {
	m.DecisionsTotal.WithLabelValues(string(decision)).Inc()
}

// ObserveOrder counts one order lifecycle event.
func (m *Metrics) ObserveOrder(side types.OrderSide, event types.OrderEvent) {
	m.OrdersTotal.WithLabelValues(string(side), string(event)).Inc()
}

// ObserveBrokerError counts a failed broker call by whether it was a rejection.
func (m *Metrics) ObserveBrokerError(op string, err error) {
	kind := "request"
	if errors.IsBrokerRejection(err) {
		kind = "rejection"
	}

	m.BrokerErrorsTotal.WithLabelValues(op, kind).Inc()
}

// SetBreakerState records the circuit breaker state as its numeric value.
func (m *Metrics) SetBreakerState(state int) {
	m.BreakerState.Set(float64(state))
}

func gaugeValue(v optional.Option[decimal.Decimal]) float64 {
	if v.IsNone() {
		return math.NaN()
	}

	return v.Unwrap().InexactFloat64()
}
