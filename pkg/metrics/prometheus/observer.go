// Package prometheus exports engine callbacks as Prometheus metrics.
package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/petrijr/sagaflow/pkg/api"
)

const namespace = "sagaflow"

// Observer implements api.Observer using Prometheus collectors.
type Observer struct {
	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	eventErrors   *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

var _ api.Observer = (*Observer)(nil)

// NewObserver registers the collectors on reg and returns the Observer.
// A nil reg uses prometheus.DefaultRegisterer. Registering twice on the
// same registerer panics, as with any promauto collector.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Observer{
		runsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of workflow runs started",
			},
			[]string{"workflow"},
		),
		runsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of workflow runs that reached a terminal status",
			},
			[]string{"workflow", "status"},
		),
		runsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_in_flight",
				Help:      "Number of workflow runs currently executing",
			},
		),
		eventErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_errors_total",
				Help:      "Total number of best-effort event emissions that failed",
			},
			[]string{"workflow"},
		),
		steps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed nodes by kind and outcome",
			},
			[]string{"workflow", "kind", "outcome"},
		),
		stepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Node execution duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"workflow", "kind"},
		),
		compensations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Total number of compensations run by outcome",
			},
			[]string{"workflow", "outcome"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow", "status"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}

func (o *Observer) OnRunStart(ctx context.Context, run *api.WorkflowRun) {
	o.runsStarted.WithLabelValues(run.WorkflowID).Inc()
	o.runsInFlight.Inc()
}

func (o *Observer) OnRunSucceeded(ctx context.Context, run *api.WorkflowRun) {
	o.finish(run)
	if n := len(run.EventErrors); n > 0 {
		o.eventErrors.WithLabelValues(run.WorkflowID).Add(float64(n))
	}
}

func (o *Observer) OnRunFailed(ctx context.Context, run *api.WorkflowRun, err error) {
	o.finish(run)
}

func (o *Observer) finish(run *api.WorkflowRun) {
	o.runsInFlight.Dec()
	o.runsFinished.WithLabelValues(run.WorkflowID, string(run.Status)).Inc()
	if !run.StartedAt.IsZero() {
		end := run.EndedAt
		if end.IsZero() {
			end = time.Now()
		}
		o.runDuration.WithLabelValues(run.WorkflowID, string(run.Status)).Observe(end.Sub(run.StartedAt).Seconds())
	}
}

func (o *Observer) OnStepStart(ctx context.Context, run *api.WorkflowRun, node string, kind api.NodeKind) {
}

func (o *Observer) OnStepCompleted(ctx context.Context, run *api.WorkflowRun, node string, kind api.NodeKind, err error, d time.Duration) {
	o.steps.WithLabelValues(run.WorkflowID, string(kind), outcome(err)).Inc()
	o.stepDuration.WithLabelValues(run.WorkflowID, string(kind)).Observe(d.Seconds())
}

func (o *Observer) OnCompensation(ctx context.Context, run *api.WorkflowRun, node string, err error) {
	o.compensations.WithLabelValues(run.WorkflowID, outcome(err)).Inc()
}
