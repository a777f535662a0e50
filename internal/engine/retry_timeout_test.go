package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

func flakyStep(failures int32, calls *atomic.Int32) api.Step {
	return api.Step{
		Name: "flaky",
		Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
			n := calls.Add(1)
			if n <= failures {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
	}
}

func TestRetrySucceedsWithinMaxAttempts(t *testing.T) {
	engine := NewInMemoryEngine()
	var calls atomic.Int32

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "retry",
		Nodes: []api.Node{
			&api.StepNode{
				Step:  flakyStep(2, &calls),
				Retry: &api.RetryPolicy{MaxAttempts: 3},
			},
		},
	})

	run, err := engine.Run(context.Background(), "retry", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Output != "ok" {
		t.Fatalf("expected output ok, got %v", run.Output)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}

	entry, _ := run.Record.Entry("flaky")
	if entry.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", entry.Attempts)
	}
}

func TestRetryExhaustedFailsRun(t *testing.T) {
	engine := NewInMemoryEngine()
	var calls atomic.Int32

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "retry-exhausted",
		Nodes: []api.Node{
			&api.StepNode{
				Step:  flakyStep(10, &calls),
				Retry: &api.RetryPolicy{MaxAttempts: 2},
			},
		},
	})

	run, err := engine.Run(context.Background(), "retry-exhausted", nil)
	require.Error(t, err)
	require.Equal(t, api.StatusCompensated, run.Status)
	require.Equal(t, int32(2), calls.Load())

	var stepErr *api.StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, 2, stepErr.Attempts)
	require.Contains(t, stepErr.Error(), "after 2 attempts")
}

func TestRetryBackoffIsApplied(t *testing.T) {
	engine := NewInMemoryEngine()
	var calls atomic.Int32

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "retry-backoff",
		Nodes: []api.Node{
			&api.StepNode{
				Step: flakyStep(2, &calls),
				Retry: &api.RetryPolicy{
					MaxAttempts:       3,
					InitialBackoff:    20 * time.Millisecond,
					BackoffMultiplier: 2,
					MaxBackoff:        30 * time.Millisecond,
				},
			},
		},
	})

	start := time.Now()
	_, err := engine.Run(context.Background(), "retry-backoff", nil)
	require.NoError(t, err)

	// 20ms then min(40ms, 30ms).
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCompensationsAreNotRetried(t *testing.T) {
	engine := NewInMemoryEngine()
	var compensations atomic.Int32

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "no-comp-retry",
		Nodes: []api.Node{
			&api.StepNode{
				Step: api.Step{
					Name: "a",
					Invoke: func(context.Context, *api.ExecutionContext, any) (any, error) {
						return "a", nil
					},
					Compensate: func(context.Context, *api.ExecutionContext, any) error {
						compensations.Add(1)
						return errors.New("still broken")
					},
				},
				Retry: &api.RetryPolicy{MaxAttempts: 5},
			},
			stepNode(api.Step{
				Name: "b",
				Invoke: func(context.Context, *api.ExecutionContext, any) (any, error) {
					return nil, errBoom
				},
			}),
		},
	})

	run, err := engine.Run(context.Background(), "no-comp-retry", nil)
	require.Error(t, err)
	require.Equal(t, api.StatusCompensationFailed, run.Status)
	require.Equal(t, int32(1), compensations.Load())
}

func TestStepTimeout(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "timeout",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			&api.StepNode{
				Step: api.Step{
					Name: "slow",
					Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					},
				},
				Timeout: 20 * time.Millisecond,
			},
		},
	})

	run, err := engine.Run(context.Background(), "timeout", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, api.StatusCompensated, run.Status)
	require.Equal(t, 1, j.count("compensate:a:a-out"))
}

func TestStepTimeoutIgnoringContext(t *testing.T) {
	engine := NewInMemoryEngine()
	release := make(chan struct{})
	defer close(release)

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "timeout-stubborn",
		Nodes: []api.Node{
			&api.StepNode{
				Step: api.Step{
					Name: "stubborn",
					Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
						<-release
						return "late", nil
					},
				},
				Timeout: 20 * time.Millisecond,
			},
		},
	})

	start := time.Now()
	_, err := engine.Run(context.Background(), "timeout-stubborn", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}
