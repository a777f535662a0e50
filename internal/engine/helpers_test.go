package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/petrijr/sagaflow/pkg/api"
)

var errBoom = errors.New("boom")

// journal records invoke and compensate calls in the order they happen.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *journal) count(s string) int {
	n := 0
	for _, c := range j.list() {
		if c == s {
			n++
		}
	}
	return n
}

// okStep returns a step that records "invoke:<name>", outputs "<name>-out"
// and compensates by recording "compensate:<name>".
func okStep(j *journal, name string) api.Step {
	return api.Step{
		Name: name,
		Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
			j.add("invoke:" + name)
			return name + "-out", nil
		},
		Compensate: func(ctx context.Context, ec *api.ExecutionContext, data any) error {
			j.add(fmt.Sprintf("compensate:%s:%v", name, data))
			return nil
		},
	}
}

// failStep returns a step whose invoke records the call and fails.
func failStep(j *journal, name string, err error) api.Step {
	return api.Step{
		Name: name,
		Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
			j.add("invoke:" + name)
			return nil, err
		},
		Compensate: func(ctx context.Context, ec *api.ExecutionContext, data any) error {
			j.add("compensate:" + name)
			return nil
		},
	}
}

func stepNode(s api.Step) *api.StepNode {
	return &api.StepNode{Step: s}
}

func mustRegister(t *testing.T, e api.Engine, def *api.WorkflowDefinition) {
	t.Helper()
	if err := e.RegisterWorkflow(def); err != nil {
		t.Fatalf("RegisterWorkflow(%q) failed: %v", def.ID, err)
	}
}

func requireWorkflowError(t *testing.T, err error) *api.WorkflowError {
	t.Helper()
	var werr *api.WorkflowError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *api.WorkflowError, got %T (%v)", err, err)
	}
	return werr
}
