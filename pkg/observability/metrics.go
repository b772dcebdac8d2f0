package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/authgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gate's collectors.
type Metrics struct {
	registry *prometheus.Registry

	Transitions         *prometheus.CounterVec
	RejectedTransitions *prometheus.CounterVec
	StaleContexts       prometheus.Counter
	Appends             prometheus.Counter
	DeniedAppends       prometheus.Counter
	ChainLength         prometheus.Gauge
	Undos               *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_transitions_total",
				Help: "Successful state transitions",
			},
			[]string{"event", "to"},
		),
		RejectedTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_transitions_rejected_total",
				Help: "Events not permitted from the current state",
			},
			[]string{"event", "from"},
		),
		StaleContexts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_stale_context_total",
			Help: "Actions terminated because their context changed",
		}),
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_ledger_appends_total",
			Help: "Entries appended to the audit ledger",
		}),
		DeniedAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_ledger_appends_denied_total",
			Help: "Appends refused by a sealed or compromised ledger",
		}),
		ChainLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "authgate_ledger_chain_length",
			Help: "Number of entries in the audit ledger",
		}),
		Undos: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_undo_total",
				Help: "Undo and redo attempts by outcome",
			},
			[]string{"op", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.Transitions,
		m.RejectedTransitions,
		m.StaleContexts,
		m.Appends,
		m.DeniedAppends,
		m.ChainLength,
		m.Undos,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(string(e.Event), string(e.To)).Inc()
		},
		OnTransitionRejected: func(_ context.Context, e *domain.TransitionEvent) {
			m.RejectedTransitions.WithLabelValues(string(e.Event), string(e.From)).Inc()
		},
		OnStaleContext: func(context.Context, *domain.StaleContextError) {
			m.StaleContexts.Inc()
		},
		OnAppend: func(_ context.Context, e *domain.LedgerEvent) {
			m.Appends.Inc()
			m.ChainLength.Set(float64(e.ChainIndex + 1))
		},
		OnAppendDenied: func(context.Context, *domain.LedgerEvent) {
			m.DeniedAppends.Inc()
		},
		OnUndo: func(_ context.Context, e *domain.UndoEvent) {
			op := "undo"
			if e.Redo {
				op = "redo"
			}
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.Undos.WithLabelValues(op, outcome).Inc()
		},
	}
}
