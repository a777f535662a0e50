package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petrijr/sagaflow/pkg/api"
)

// fakeObserver records all calls from the engine so we can assert on them.
type fakeObserver struct {
	mu sync.Mutex

	runStarts     []string
	runSucceeded  []string
	runFailed     []error
	stepStarts    []string
	stepCompletes []stepEvent
	compensations []stepEvent
}

type stepEvent struct {
	Step     string
	Kind     api.NodeKind
	Err      error
	Duration time.Duration
}

func (o *fakeObserver) OnRunStart(ctx context.Context, run *api.WorkflowRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts = append(o.runStarts, run.ID)
}

func (o *fakeObserver) OnRunSucceeded(ctx context.Context, run *api.WorkflowRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runSucceeded = append(o.runSucceeded, run.ID)
}

func (o *fakeObserver) OnRunFailed(ctx context.Context, run *api.WorkflowRun, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runFailed = append(o.runFailed, err)
}

func (o *fakeObserver) OnStepStart(ctx context.Context, run *api.WorkflowRun, node string, kind api.NodeKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts = append(o.stepStarts, node)
}

func (o *fakeObserver) OnStepCompleted(ctx context.Context, run *api.WorkflowRun, node string, kind api.NodeKind, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes = append(o.stepCompletes, stepEvent{Step: node, Kind: kind, Err: err, Duration: d})
}

func (o *fakeObserver) OnCompensation(ctx context.Context, run *api.WorkflowRun, node string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compensations = append(o.compensations, stepEvent{Step: node, Err: err})
}

func TestObserverSuccessfulRun(t *testing.T) {
	j := &journal{}
	obs := &fakeObserver{}
	engine := NewEngineWithConfig(Config{Observer: obs})

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "observed",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			&api.TransformNode{Key: "t", Input: api.Ref("a"), Fn: func(in any) (any, error) { return in, nil }},
		},
	})

	run, err := engine.Run(context.Background(), "observed", nil)
	require.NoError(t, err)

	require.Equal(t, []string{run.ID}, obs.runStarts)
	require.Equal(t, []string{run.ID}, obs.runSucceeded)
	require.Empty(t, obs.runFailed)
	require.Equal(t, []string{"a", "t"}, obs.stepStarts)
	require.Len(t, obs.stepCompletes, 2)
	require.Equal(t, api.KindTransform, obs.stepCompletes[1].Kind)
	require.Empty(t, obs.compensations)
}

func TestObserverFailedRun(t *testing.T) {
	j := &journal{}
	obs := &fakeObserver{}
	engine := NewEngineWithConfig(Config{Observer: obs})

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "observed-fail",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			stepNode(failStep(j, "b", errBoom)),
		},
	})

	_, err := engine.Run(context.Background(), "observed-fail", nil)
	require.Error(t, err)

	require.Len(t, obs.runFailed, 1)
	require.Same(t, err, obs.runFailed[0])
	require.Len(t, obs.stepCompletes, 2)
	require.True(t, errors.Is(obs.stepCompletes[1].Err, errBoom))
	require.Equal(t, []stepEvent{{Step: "a"}}, obs.compensations)
}

func TestBasicMetricsAndLoggingObserver(t *testing.T) {
	j := &journal{}
	core, logs := observer.New(zap.DebugLevel)
	metrics := &api.BasicMetrics{}

	engine := NewEngineWithConfig(Config{
		Observer: api.NewCompositeObserver(api.NewLoggingObserver(zap.New(core)), metrics),
	})

	mustRegister(t, engine, &api.WorkflowDefinition{ID: "ok", Nodes: []api.Node{stepNode(okStep(j, "a"))}})
	mustRegister(t, engine, &api.WorkflowDefinition{ID: "bad", Nodes: []api.Node{
		stepNode(okStep(j, "a")),
		stepNode(failStep(j, "b", errBoom)),
	}})

	_, err := engine.Run(context.Background(), "ok", nil)
	require.NoError(t, err)
	_, err = engine.Run(context.Background(), "bad", nil)
	require.Error(t, err)

	snap := metrics.Snapshot()
	require.Equal(t, int64(2), snap.RunsStarted)
	require.Equal(t, int64(1), snap.RunsSucceeded)
	require.Equal(t, int64(1), snap.RunsFailed)
	require.Equal(t, int64(0), snap.RunsInFlight)
	require.Equal(t, int64(2), snap.StepsCompleted)
	require.Equal(t, int64(1), snap.StepsFailed)
	require.Equal(t, int64(1), snap.Compensations)
	require.Zero(t, snap.CompensationsFailed)

	require.Equal(t, 2, logs.FilterMessage("run_start").Len())
	require.Equal(t, 1, logs.FilterMessage("run_succeeded").Len())
	require.Equal(t, 1, logs.FilterMessage("run_failed").Len())
	require.Equal(t, 1, logs.FilterMessage("step_compensated").Len())

	failed := logs.FilterMessage("run_failed").All()[0]
	require.Equal(t, string(api.StatusCompensated), failed.ContextMap()["status"])
}

func TestStepLoggerIsTaggedWithRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	engine := NewEngineWithConfig(Config{Logger: zap.New(core)})

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "logging",
		Nodes: []api.Node{stepNode(api.Step{
			Name: "log",
			Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
				ec.Logger.Info("hello from step")
				return nil, nil
			},
		})},
	})

	run, err := engine.Run(context.Background(), "logging", nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("hello from step").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, run.ID, fields["run_id"])
	require.Equal(t, "logging", fields["workflow_id"])
}
