// Package metrics exposes Prometheus instrumentation for the ledger.
//
// All methods are safe to call on a nil *Metrics so components can be
// constructed without instrumentation.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"lukechampine.com/uint128"
)

// Namespace prefixes every metric name.
const Namespace = "ftledger"

// Notify outcome labels.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

// Metrics holds all Prometheus collectors for one ledger process.
type Metrics struct {
	registry *prometheus.Registry

	Operations     *prometheus.CounterVec
	TotalSupply    prometheus.Gauge
	Accounts       prometheus.Gauge
	Burns          prometheus.Counter
	ForcedCloses   prometheus.Counter
	NotifyDuration prometheus.Histogram
	NotifyOutcomes *prometheus.CounterVec
	Refunds        *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and result",
		}, []string{"op", "result"}),
		TotalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "total_supply",
			Help:      "Current total supply (float approximation of the 128-bit value)",
		}),
		Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "registered_accounts",
			Help:      "Number of registered accounts",
		}),
		Burns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "burns_total",
			Help:      "Burn events, including forced-unregistration and refund burns",
		}),
		ForcedCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "forced_unregistrations_total",
			Help:      "Unregistrations that burned a nonzero balance",
		}),
		NotifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "notify_duration_seconds",
			Help:      "Time spent waiting for receiver hooks",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		NotifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notify_outcomes_total",
			Help:      "Receiver hook outcomes",
		}, []string{"outcome"}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notify_refunds_total",
			Help:      "Transfer-and-notify settlements by refund kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.Operations,
		m.TotalSupply,
		m.Accounts,
		m.Burns,
		m.ForcedCloses,
		m.NotifyDuration,
		m.NotifyOutcomes,
		m.Refunds,
	)
	return m
}

// Registry returns the registry holding the ledger collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOp counts one operation with its result label.
func (m *Metrics) ObserveOp(op, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

// SetSupply records the current total supply.
func (m *Metrics) SetSupply(v uint128.Uint128) {
	if m == nil {
		return
	}
	f, _ := new(big.Float).SetInt(v.Big()).Float64()
	m.TotalSupply.Set(f)
}

// SetAccounts records the number of registered accounts.
func (m *Metrics) SetAccounts(n int) {
	if m == nil {
		return
	}
	m.Accounts.Set(float64(n))
}

// AccountOpened increments the registered account gauge.
func (m *Metrics) AccountOpened() {
	if m == nil {
		return
	}
	m.Accounts.Inc()
}

// AccountClosed decrements the registered account gauge.
func (m *Metrics) AccountClosed(forced bool) {
	if m == nil {
		return
	}
	m.Accounts.Dec()
	if forced {
		m.ForcedCloses.Inc()
	}
}

// Burned counts a burn.
func (m *Metrics) Burned() {
	if m == nil {
		return
	}
	m.Burns.Inc()
}

// ObserveNotify records the duration and outcome of a receiver hook call.
func (m *Metrics) ObserveNotify(seconds float64, outcome string) {
	if m == nil {
		return
	}
	m.NotifyDuration.Observe(seconds)
	m.NotifyOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveRefund counts a settlement by kind ("none", "refund", "burn").
func (m *Metrics) ObserveRefund(kind string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(kind).Inc()
}
