// Package metrics defines the Prometheus collectors recorded by the
// scheduling service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid_graph"
	OutcomeCycle   = "cycle"
	OutcomeError   = "error"
)

// Metrics holds every collector. Create one per registry.
type Metrics struct {
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	ScheduledTasks   *prometheus.GaugeVec
	CriticalTasks    *prometheus.GaugeVec
	ProjectDuration  *prometheus.GaugeVec
	Transitions      *prometheus.CounterVec
	DependencyErrors *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg gives unregistered
// collectors, which still record.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedloom",
			Name:      "schedule_runs_total",
			Help:      "Scheduling runs by anchor mode, tentative flag and outcome.",
		}, []string{"mode", "tentative", "outcome"}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schedloom",
			Name:      "schedule_run_duration_seconds",
			Help:      "Wall time of one scheduling run including load and persist.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		ScheduledTasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schedloom",
			Name:      "scheduled_tasks",
			Help:      "Tasks scheduled by the last successful run.",
		}, []string{"project"}),

		CriticalTasks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schedloom",
			Name:      "critical_tasks",
			Help:      "Critical tasks found by the last successful run.",
		}, []string{"project"}),

		ProjectDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schedloom",
			Name:      "project_duration_days",
			Help:      "Project span in days computed by the last successful run.",
		}, []string{"project"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedloom",
			Name:      "date_transitions_total",
			Help:      "Tasks touched by publish, discard and shift, by action.",
		}, []string{"action"}),

		DependencyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedloom",
			Name:      "dependency_rejections_total",
			Help:      "Dependency inserts rejected, by reason.",
		}, []string{"reason"}),
	}
}
