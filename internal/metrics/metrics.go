package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	Mutations       *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	RejectedActions *prometheus.CounterVec
	MutationTime    prometheus.Histogram
}

// NewMetrics creates new prometheus metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Mutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "The total number of applied entity mutations",
		}, []string{"entity", "operation"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "The total number of applied status transitions",
		}, []string{"entity", "transition"}),
		Violations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_violations_total",
			Help:      "The total number of rejected mutations by violation code",
		}, []string{"entity", "code"}),
		RejectedActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_actions_total",
			Help:      "The total number of rejected transitions and assignments",
		}, []string{"entity", "reason"}),
		MutationTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time taken to validate and apply a mutation",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveMutation records one applied mutation and its latency.
func (m *Metrics) ObserveMutation(entity, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(entity, operation).Inc()
	m.MutationTime.Observe(time.Since(start).Seconds())
}

// ObserveTransition records one applied status transition.
func (m *Metrics) ObserveTransition(entity, transition string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, transition).Inc()
}

// ObserveViolations records the violation codes of a rejected mutation.
func (m *Metrics) ObserveViolations(entity string, codes []string) {
	if m == nil {
		return
	}
	for _, code := range codes {
		m.Violations.WithLabelValues(entity, code).Inc()
	}
}

// ObserveRejection records a rejected transition or assignment.
func (m *Metrics) ObserveRejection(entity, reason string) {
	if m == nil {
		return
	}
	m.RejectedActions.WithLabelValues(entity, reason).Inc()
}
