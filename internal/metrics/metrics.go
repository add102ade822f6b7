// Package metrics exposes prometheus counters for the decision loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "getrader"

type Metrics struct {
	registry *prometheus.Registry

	Decisions       *prometheus.CounterVec
	Trades          *prometheus.CounterVec
	TradeProfit     *prometheus.CounterVec
	BackendFailures *prometheus.CounterVec
	LearningPasses  *prometheus.CounterVec
	AdaptiveActions *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions produced, by answering backend and whether they were executed.",
		}, []string{"source", "executed"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Settled trades by action and result.",
		}, []string{"action", "result"}),
		TradeProfit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_profit_gp_total",
			Help:      "Absolute settled profit and loss in gp.",
		}, []string{"kind"}),
		BackendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_backend_failures_total",
			Help:      "Prediction backend errors that triggered a fallback.",
		}, []string{"backend"}),
		LearningPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_passes_total",
			Help:      "Adaptive learning passes by result.",
		}, []string{"result"}),
		AdaptiveActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptive_actions_total",
			Help:      "Applied adaptive actions by type.",
		}, []string{"type"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running cycles.",
		}),
	}
	m.registry.MustRegister(
		m.Decisions, m.Trades, m.TradeProfit, m.BackendFailures,
		m.LearningPasses, m.AdaptiveActions, m.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(source string, executed bool) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(source, boolLabel(executed)).Inc()
}

func (m *Metrics) ObserveTrade(action string, success bool, profit float64) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.Trades.WithLabelValues(action, result).Inc()
	if profit >= 0 {
		m.TradeProfit.WithLabelValues("profit").Add(profit)
	} else {
		m.TradeProfit.WithLabelValues("loss").Add(-profit)
	}
}

func (m *Metrics) ObserveBackendFailure(backend string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveLearningPass(ok bool, actionTypes []string) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.LearningPasses.WithLabelValues(result).Inc()
	for _, t := range actionTypes {
		m.AdaptiveActions.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
