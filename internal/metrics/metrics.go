// ABOUTME: Prometheus collectors for the record store and session activity
// ABOUTME: Registered once against a caller-supplied registerer

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/session"
)

const namespace = "fitportal"

// Metrics holds the portal's collectors.
type Metrics struct {
	StoreOpDuration    *prometheus.HistogramVec
	StoreErrors        *prometheus.CounterVec
	AuthAttempts       *prometheus.CounterVec
	SessionTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoreOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "op_duration_seconds",
				Help:      "Record store operation latency by op, collection and status.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"op", "collection", "status"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Record store errors by op and error kind.",
			},
			[]string{"op", "kind"},
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Sign-up, login and logout attempts by result.",
			},
			[]string{"op", "result"}, // result=ok|<error kind>
		),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Session state transitions delivered to subscribers.",
			},
			[]string{"state"},
		),
	}
	reg.MustRegister(m.StoreOpDuration, m.StoreErrors, m.AuthAttempts, m.SessionTransitions)
	return m
}

// SessionHooks returns hooks that count session attempts and transitions.
func (m *Metrics) SessionHooks() session.Hooks {
	return session.Hooks{
		OnTransition: func(state string) {
			m.SessionTransitions.WithLabelValues(state).Inc()
		},
		OnAttempt: func(op string, err error) {
			m.AuthAttempts.WithLabelValues(op, resultLabel(err)).Inc()
		},
	}
}

// resultLabel is "ok" for nil and the taxonomy kind otherwise.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "internal"
}
