package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moderator"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records nothing,
// so services and tests can skip instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	prefilterDecisions *prometheus.CounterVec
	gatewayOutcomes    *prometheus.CounterVec
	categories         *prometheus.CounterVec
	adjudications      *prometheus.CounterVec
	strikes            *prometheus.CounterVec
	mutes              *prometheus.CounterVec
	quarantine         *prometheus.CounterVec
	tickets            *prometheus.CounterVec
	platformErrors     *prometheus.CounterVec
	inFlight           prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		prefilterDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefilter_decisions_total",
			Help:      "Prefilter routing decisions by rule.",
		}, []string{"decision", "rule"}),
		gatewayOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_outcomes_total",
			Help:      "Classification gateway outcomes.",
		}, []string{"outcome"}),
		categories: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_categories_total",
			Help:      "Resolved classification categories.",
		}, []string{"category"}),
		adjudications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjudications_total",
			Help:      "Adjudication verdicts.",
		}, []string{"verdict"}),
		strikes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_total",
			Help:      "Persisted strikes by category.",
		}, []string{"category"}),
		mutes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutes_total",
			Help:      "Applied mutes by kind.",
		}, []string{"kind"}),
		quarantine: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantine_transitions_total",
			Help:      "Quarantine state transitions.",
		}, []string{"transition"}),
		tickets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_total",
			Help:      "Ticket open results.",
		}, []string{"result"}),
		platformErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_action_errors_total",
			Help:      "Failed platform actions.",
		}, []string{"action"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classify_in_flight",
			Help:      "Classifier calls currently in flight.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PrefilterDecision(decision, rule string) {
	if m == nil {
		return
	}
	m.prefilterDecisions.WithLabelValues(decision, rule).Inc()
}

func (m *Metrics) GatewayOutcome(outcome string) {
	if m == nil {
		return
	}
	m.gatewayOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Category(category string) {
	if m == nil {
		return
	}
	m.categories.WithLabelValues(category).Inc()
}

func (m *Metrics) Adjudication(verdict string) {
	if m == nil {
		return
	}
	m.adjudications.WithLabelValues(verdict).Inc()
}

func (m *Metrics) Strike(category string) {
	if m == nil {
		return
	}
	m.strikes.WithLabelValues(category).Inc()
}

func (m *Metrics) Mute(kind string) {
	if m == nil {
		return
	}
	m.mutes.WithLabelValues(kind).Inc()
}

func (m *Metrics) Quarantine(transition string) {
	if m == nil {
		return
	}
	m.quarantine.WithLabelValues(transition).Inc()
}

func (m *Metrics) Ticket(result string) {
	if m == nil {
		return
	}
	m.tickets.WithLabelValues(result).Inc()
}

func (m *Metrics) PlatformError(action string) {
	if m == nil {
		return
	}
	m.platformErrors.WithLabelValues(action).Inc()
}

func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}
