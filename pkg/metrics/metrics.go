// Package metrics exposes Prometheus instruments for task orchestration. The
// instruments are registered on a caller-supplied registry so that several
// orchestrators (and tests) can coexist in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the orchestration instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// TaskTransitions counts task status transitions by category and status
	TaskTransitions *prometheus.CounterVec

	// TasksRunning tracks tasks currently dispatched
	TasksRunning prometheus.Gauge

	// WorkerDuration tracks worker execution time by category and outcome
	WorkerDuration *prometheus.HistogramVec

	// FindingsTotal counts recorded findings by severity
	FindingsTotal *prometheus.CounterVec

	// WorkflowsTotal counts finished workflow runs by outcome
	WorkflowsTotal *prometheus.CounterVec
}

// New registers the instruments on reg. A nil reg uses a fresh private
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		TaskTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bytehunter",
				Name:      "task_transitions_total",
				Help:      "Total number of task status transitions by category and status",
			},
			[]string{"category", "status"},
		),
		TasksRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bytehunter",
				Name:      "tasks_running",
				Help:      "Number of tasks currently running",
			},
		),
		WorkerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bytehunter",
				Name:      "worker_duration_seconds",
				Help:      "Worker execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"category", "outcome"},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bytehunter",
				Name:      "findings_total",
				Help:      "Total number of findings recorded by severity",
			},
			[]string{"severity"},
		),
		WorkflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bytehunter",
				Name:      "workflows_total",
				Help:      "Total number of workflow runs by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordTransition counts a task entering status.
func (m *Metrics) RecordTransition(category, status string) {
	if m == nil {
		return
	}
	m.TaskTransitions.WithLabelValues(category, status).Inc()
	switch status {
	case "Running":
		m.TasksRunning.Inc()
	case "Completed", "Failed":
		m.TasksRunning.Dec()
	}
}

// ObserveWorker records how long a worker ran.
func (m *Metrics) ObserveWorker(category string, succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	m.WorkerDuration.WithLabelValues(category, outcome).Observe(d.Seconds())
}

// RecordFinding counts one finding of the given severity.
func (m *Metrics) RecordFinding(severity string) {
	if m == nil {
		return
	}
	m.FindingsTotal.WithLabelValues(severity).Inc()
}

// RecordWorkflow counts a finished workflow run.
func (m *Metrics) RecordWorkflow(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.WorkflowsTotal.WithLabelValues(outcome).Inc()
}
