package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep outcomes recorded in schoolhub_sweep_runs_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// SweepMetrics records scheduled sweep runs per procedure.
type SweepMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewSweepMetrics creates the sweep collectors and registers them with reg.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhub_sweep_runs_total",
				Help: "Total number of sweep runs by outcome",
			},
			[]string{"procedure", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schoolhub_sweep_duration_seconds",
				Help:    "Duration of sweep runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 600},
			},
			[]string{"procedure"},
		),
		stepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhub_sweep_step_failures_total",
				Help: "Candidates a sweep failed to process",
			},
			[]string{"procedure"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schoolhub_sweep_notifications_total",
				Help: "Notifications emitted by sweeps",
			},
			[]string{"procedure"},
		),
	}

	reg.MustRegister(m.runs, m.duration, m.stepFailures, m.notifications)
	return m
}

// ObserveRun records one finished run.
func (m *SweepMetrics) ObserveRun(procedure, outcome string, elapsed time.Duration, notified, failed int) {
	m.runs.WithLabelValues(procedure, outcome).Inc()
	m.duration.WithLabelValues(procedure).Observe(elapsed.Seconds())
	if notified > 0 {
		m.notifications.WithLabelValues(procedure).Add(float64(notified))
	}
	if failed > 0 {
		m.stepFailures.WithLabelValues(procedure).Add(float64(failed))
	}
}

// ObserveSkip records a trigger dropped because the previous run was still active.
func (m *SweepMetrics) ObserveSkip(procedure string) {
	m.runs.WithLabelValues(procedure, OutcomeSkipped).Inc()
}
