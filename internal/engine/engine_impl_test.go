package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

type OnboardingInput struct {
	Email string
}

type UserRecord struct {
	ID    string
	Email string
}

type ProvisionedResult struct {
	UserID string
	Env    string
}

func TestSequentialWorkflowSucceeds(t *testing.T) {
	ctx := context.Background()
	engine := NewInMemoryEngine()

	createUser := api.TypedStep("create-user", func(ctx context.Context, ec *api.ExecutionContext, in OnboardingInput) (UserRecord, error) {
		return UserRecord{ID: "user-123", Email: in.Email}, nil
	})
	provision := api.TypedStep("provision", func(ctx context.Context, ec *api.ExecutionContext, user UserRecord) (ProvisionedResult, error) {
		return ProvisionedResult{UserID: user.ID, Env: "dev"}, nil
	})

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "onboarding",
		Nodes: []api.Node{
			&api.StepNode{Step: createUser, Input: api.Input()},
			&api.StepNode{Step: provision, Input: api.Ref("create-user")},
		},
	})

	run, err := engine.Run(ctx, "onboarding", OnboardingInput{Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Status != api.StatusSucceeded {
		t.Fatalf("expected run status %q, got %q", api.StatusSucceeded, run.Status)
	}

	res, ok := run.Output.(ProvisionedResult)
	if !ok {
		t.Fatalf("expected ProvisionedResult output, got %T", run.Output)
	}
	if res.UserID != "user-123" || res.Env != "dev" {
		t.Fatalf("unexpected output: %+v", res)
	}

	if run.Record.Len() != 2 || run.Record.CountByStatus(api.EntrySucceeded) != 2 {
		t.Fatalf("expected 2 succeeded record entries, got %+v", run.Record.Entries())
	}
	if run.EndedAt.IsZero() || run.EndedAt.Before(run.StartedAt) {
		t.Fatalf("unexpected run times: started=%v ended=%v", run.StartedAt, run.EndedAt)
	}
}

func TestAllStepsSucceedNoCompensation(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "three",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			stepNode(okStep(j, "b")),
			stepNode(okStep(j, "c")),
		},
	})

	run, err := engine.Run(context.Background(), "three", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, run.Status)
	require.Equal(t, "c-out", run.Output)
	require.Equal(t, []string{"invoke:a", "invoke:b", "invoke:c"}, j.list())
}

func TestZeroBindingSeesAllUpstreamOutputs(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	var seen api.Data
	collect := api.Step{
		Name: "collect",
		Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
			seen = input.(api.Data)
			return len(seen), nil
		},
	}

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "merge",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			stepNode(okStep(j, "b")),
			stepNode(collect),
		},
	})

	run, err := engine.Run(context.Background(), "merge", "in")
	require.NoError(t, err)
	assert.Equal(t, 3, run.Output)
	assert.Equal(t, api.Data{"input": "in", "a": "a-out", "b": "b-out"}, seen)
}

func TestOutputBinding(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "output",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			stepNode(okStep(j, "b")),
		},
		Output: api.Bind(func(d api.Data) (any, error) {
			return fmt.Sprintf("%v+%v", d["a"], d["b"]), nil
		}, "a", "b"),
	})

	run, err := engine.Run(context.Background(), "output", nil)
	require.NoError(t, err)
	require.Equal(t, "a-out+b-out", run.Output)
}

func TestStepResponseSplitsOutputAndCompensationInput(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	update := api.Step{
		Name: "update",
		Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
			return api.NewStepResponseWithCompensation("new-rows", "previous-rows"), nil
		},
		Compensate: func(ctx context.Context, ec *api.ExecutionContext, data any) error {
			j.add(fmt.Sprintf("restore:%v", data))
			return nil
		},
	}

	var downstream any
	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "split",
		Nodes: []api.Node{
			stepNode(update),
			&api.StepNode{
				Step: api.Step{
					Name: "after",
					Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
						downstream = input
						return nil, errBoom
					},
				},
				Input: api.Ref("update"),
			},
		},
	})

	run, err := engine.Run(context.Background(), "split", nil)
	require.Error(t, err)
	require.Equal(t, api.StatusCompensated, run.Status)
	require.Equal(t, "new-rows", downstream)
	require.Equal(t, []string{"restore:previous-rows"}, j.list())

	entry, ok := run.Record.Entry("update")
	require.True(t, ok)
	require.Equal(t, "new-rows", entry.Result)
	require.Equal(t, "previous-rows", entry.CompensateInput)
}

func TestRegisterWorkflowValidation(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	err := engine.RegisterWorkflow(&api.WorkflowDefinition{ID: "empty"})
	var gerr *api.GraphDefinitionError
	require.ErrorAs(t, err, &gerr)

	err = engine.RegisterWorkflow(&api.WorkflowDefinition{
		ID: "dup",
		Nodes: []api.Node{
			stepNode(okStep(j, "a")),
			stepNode(okStep(j, "a")),
		},
	})
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, "a", gerr.Node)

	def := &api.WorkflowDefinition{ID: "once", Nodes: []api.Node{stepNode(okStep(j, "a"))}}
	require.NoError(t, engine.RegisterWorkflow(def))
	require.ErrorIs(t, engine.RegisterWorkflow(def), api.ErrWorkflowExists)
}

func TestRunUnknownWorkflow(t *testing.T) {
	engine := NewInMemoryEngine()

	run, err := engine.Run(context.Background(), "nope", nil)
	if run != nil {
		t.Fatalf("expected nil run, got %+v", run)
	}
	if !errors.Is(err, api.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestGetAndListRuns(t *testing.T) {
	ctx := context.Background()
	j := &journal{}
	engine := NewInMemoryEngine()

	mustRegister(t, engine, &api.WorkflowDefinition{ID: "ok", Nodes: []api.Node{stepNode(okStep(j, "a"))}})
	mustRegister(t, engine, &api.WorkflowDefinition{ID: "bad", Nodes: []api.Node{stepNode(failStep(j, "x", errBoom))}})

	okRun, err := engine.Run(ctx, "ok", 1)
	require.NoError(t, err)
	_, err = engine.Run(ctx, "ok", 2)
	require.NoError(t, err)
	badRun, err := engine.Run(ctx, "bad", 3)
	require.Error(t, err)

	got, err := engine.GetRun(ctx, okRun.ID)
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, got.Status)
	require.Equal(t, 1, got.Input)

	_, err = engine.GetRun(ctx, "missing")
	require.ErrorIs(t, err, api.ErrRunNotFound)

	all, err := engine.ListRuns(ctx, api.RunListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	okRuns, err := engine.ListRuns(ctx, api.RunListOptions{WorkflowID: "ok"})
	require.NoError(t, err)
	require.Len(t, okRuns, 2)

	compensated, err := engine.ListRuns(ctx, api.RunListOptions{Status: api.StatusCompensated})
	require.NoError(t, err)
	require.Len(t, compensated, 1)
	require.Equal(t, badRun.ID, compensated[0].ID)
}

func TestRunIDsAreUnique(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()
	mustRegister(t, engine, &api.WorkflowDefinition{ID: "ok", Nodes: []api.Node{stepNode(okStep(j, "a"))}})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		run, err := engine.Run(context.Background(), "ok", i)
		require.NoError(t, err)
		require.False(t, seen[run.ID], "duplicate run id %s", run.ID)
		seen[run.ID] = true
	}
}

func TestExecutionContextIsPassedToSteps(t *testing.T) {
	var got *api.ExecutionContext
	engine := NewInMemoryEngine()

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "ctx",
		Nodes: []api.Node{stepNode(api.Step{
			Name: "peek",
			Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
				got = ec
				return nil, nil
			},
		})},
	})

	run, err := engine.Run(context.Background(), "ctx", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, run.ID, got.RunID)
	require.Equal(t, "ctx", got.WorkflowID)
	require.NotNil(t, got.Logger)
	require.NotNil(t, got.Query)
	require.NotNil(t, got.Events)

	_, err = got.Query.Graph(context.Background(), api.QueryRequest{EntryPoint: "order"})
	require.Error(t, err, "default query collaborator should fail")
}

func TestCancelledContextBeforeNextNode(t *testing.T) {
	j := &journal{}
	engine := NewInMemoryEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancelling := api.Step{
		Name: "cancel",
		Invoke: func(context.Context, *api.ExecutionContext, any) (any, error) {
			j.add("invoke:cancel")
			cancel()
			return "done", nil
		},
		Compensate: func(context.Context, *api.ExecutionContext, any) error {
			j.add("compensate:cancel")
			return nil
		},
	}

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "cancelled",
		Nodes: []api.Node{
			stepNode(cancelling),
			stepNode(okStep(j, "never")),
		},
	})

	run, err := engine.Run(ctx, "cancelled", nil)
	werr := requireWorkflowError(t, err)
	require.Equal(t, "never", werr.Step)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, api.StatusCompensated, run.Status)
	require.Equal(t, []string{"invoke:cancel", "compensate:cancel"}, j.list())
}
