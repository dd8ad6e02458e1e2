package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Assignment metrics
	AssignmentAttempts *prometheus.CounterVec
	AssignmentLatency  prometheus.Histogram
	LedgerConflicts    prometheus.Counter
	Transitions        *prometheus.CounterVec

	// Session metrics
	SessionEvents *prometheus.CounterVec

	// Intake metrics
	IntakeEvents *prometheus.CounterVec

	// Sweep metrics
	SweepRemoved  *prometheus.CounterVec
	SweepFailures *prometheus.CounterVec

	// Event metrics
	AuditedEvents *prometheus.CounterVec
}

// New registers all application metrics with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AssignmentAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "attempts_total",
			Help:      "Assignment requests by outcome",
		}, []string{"outcome"}),
		AssignmentLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "duration_seconds",
			Help:      "Time spent selecting and locking a professional",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		LedgerConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "ledger_conflicts_total",
			Help:      "Creates or transitions that lost a concurrent race",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "transitions_total",
			Help:      "Assignment status transitions",
		}, []string{"to"}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events",
		}, []string{"event"}),
		IntakeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Intake staging events",
		}, []string{"event"}),
		SweepRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "removed_total",
			Help:      "Rows removed by maintenance sweeps",
		}, []string{"kind"}),
		SweepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Failed maintenance sweeps",
		}, []string{"kind"}),
		AuditedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Assignment events written to the audit log",
		}, []string{"type"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New("test", prometheus.NewRegistry())
}
