// Package metrics exposes workflow counters for /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts workflow outcomes. Outcome labels are the error tags the
// HTTP layer returns, or "ok".
type Metrics struct {
	Registrations *prometheus.CounterVec
	Redemptions   *prometheus.CounterVec
	Purges        *prometheus.CounterVec
	QueueFailures prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "registrations_total",
			Help:      "Registration attempts by person kind and outcome.",
		}, []string{"kind", "outcome"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "redemptions_total",
			Help:      "Check-in attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		Purges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "console_purges_total",
			Help:      "Console purge requests by person kind and outcome.",
		}, []string{"kind", "outcome"}),
		QueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventgate",
			Name:      "queue_publish_failures_total",
			Help:      "Events that could not be published.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Registrations, m.Redemptions, m.Purges, m.QueueFailures)
	}
	return m
}
