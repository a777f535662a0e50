package api

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Callbacks for members of a parallel group are invoked concurrently, so
// implementations must be safe for concurrent use. They should also be fast:
// heavy work belongs in a separate goroutine.
type Observer interface {
	// OnRunStart is called once before the first node is executed.
	OnRunStart(ctx context.Context, run *WorkflowRun)

	// OnRunSucceeded is called when a run reaches StatusSucceeded.
	OnRunSucceeded(ctx context.Context, run *WorkflowRun)

	// OnRunFailed is called when a run reaches StatusCompensated or
	// StatusCompensationFailed. err is the *WorkflowError returned to the caller.
	OnRunFailed(ctx context.Context, run *WorkflowRun, err error)

	// OnStepStart is called before a step, transform or sub-workflow runs.
	OnStepStart(ctx context.Context, run *WorkflowRun, node string, kind NodeKind)

	// OnStepCompleted is called after a node returns, for both successes and
	// failures (err != nil).
	OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration)

	// OnCompensation is called after the compensation of a node ran.
	OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *WorkflowRun)             {}
func (NoopObserver) OnRunSucceeded(ctx context.Context, run *WorkflowRun)         {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {}
func (NoopObserver) OnStepStart(ctx context.Context, run *WorkflowRun, node string, kind NodeKind) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration) {
}
func (NoopObserver) OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunSucceeded(ctx context.Context, run *WorkflowRun) {
	for _, o := range c.observers {
		o.OnRunSucceeded(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *WorkflowRun, node string, kind NodeKind) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, node, kind)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, node, kind, err, d)
	}
}

func (c *CompositeObserver) OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error) {
	for _, o := range c.observers {
		o.OnCompensation(ctx, run, node, err)
	}
}

// LoggingObserver writes structured logs using zap.
type LoggingObserver struct {
	Logger *zap.Logger
}

// NewLoggingObserver creates an Observer that logs run, step and
// compensation lifecycle events. If logger is nil, a no-op logger is used.
func NewLoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{Logger: logger}
}

func runFields(run *WorkflowRun) []zap.Field {
	return []zap.Field{
		zap.String("workflow_id", run.WorkflowID),
		zap.String("run_id", run.ID),
	}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *WorkflowRun) {
	o.Logger.Info("run_start", runFields(run)...)
}

func (o *LoggingObserver) OnRunSucceeded(ctx context.Context, run *WorkflowRun) {
	fields := append(runFields(run), zap.Duration("duration", run.EndedAt.Sub(run.StartedAt)))
	if len(run.EventErrors) > 0 {
		fields = append(fields, zap.Errors("event_errors", run.EventErrors))
		o.Logger.Warn("run_succeeded", fields...)
		return
	}
	o.Logger.Info("run_succeeded", fields...)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	o.Logger.Error("run_failed",
		append(runFields(run),
			zap.String("status", string(run.Status)),
			zap.Error(err),
		)...,
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *WorkflowRun, node string, kind NodeKind) {
	o.Logger.Debug("step_start",
		append(runFields(run),
			zap.String("step", node),
			zap.String("kind", string(kind)),
		)...,
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration) {
	level := zapcore.DebugLevel
	if err != nil {
		level = zapcore.ErrorLevel
	}
	o.Logger.Log(level, "step_completed",
		append(runFields(run),
			zap.String("step", node),
			zap.String("kind", string(kind)),
			zap.Duration("duration", d),
			zap.Error(err),
		)...,
	)
}

func (o *LoggingObserver) OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error) {
	level := zapcore.InfoLevel
	if err != nil {
		level = zapcore.ErrorLevel
	}
	o.Logger.Log(level, "step_compensated",
		append(runFields(run),
			zap.String("step", node),
			zap.Error(err),
		)...,
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted         atomic.Int64
	runsSucceeded       atomic.Int64
	runsFailed          atomic.Int64
	stepsCompleted      atomic.Int64
	stepsFailed         atomic.Int64
	compensations       atomic.Int64
	compensationsFailed atomic.Int64
	totalStepDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsSucceeded int64
	RunsFailed    int64
	RunsInFlight  int64

	StepsCompleted  int64
	StepsFailed     int64
	AvgStepDuration time.Duration

	Compensations       int64
	CompensationsFailed int64
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *WorkflowRun) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunSucceeded(ctx context.Context, run *WorkflowRun) {
	m.runsSucceeded.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *WorkflowRun, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, run *WorkflowRun, node string, kind NodeKind, err error, d time.Duration) {
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	// Only successful steps count towards the average duration.
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnCompensation(ctx context.Context, run *WorkflowRun, node string, err error) {
	m.compensations.Add(1)
	if err != nil {
		m.compensationsFailed.Add(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	succeeded := m.runsSucceeded.Load()
	failed := m.runsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		RunsStarted:         started,
		RunsSucceeded:       succeeded,
		RunsFailed:          failed,
		RunsInFlight:        started - succeeded - failed,
		StepsCompleted:      steps,
		StepsFailed:         m.stepsFailed.Load(),
		AvgStepDuration:     avg,
		Compensations:       m.compensations.Load(),
		CompensationsFailed: m.compensationsFailed.Load(),
	}
}
