package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func noopStep(name string) Step {
	return Step{
		Name: name,
		Invoke: func(context.Context, *ExecutionContext, any) (any, error) {
			return nil, nil
		},
	}
}

func TestValidate(t *testing.T) {
	child := &WorkflowDefinition{ID: "child", Nodes: []Node{&StepNode{Step: noopStep("inner")}}}

	cases := []struct {
		name     string
		def      *WorkflowDefinition
		wantNode string
		wantErr  bool
	}{
		{
			name: "valid sequential with bindings",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{
				&StepNode{Step: noopStep("a"), Input: Input()},
				&TransformNode{Key: "t", Input: Ref("a"), Fn: func(in any) (any, error) { return in, nil }},
				&StepNode{Step: noopStep("b"), Input: Pick("a", "t")},
			}, Output: Ref("b")},
		},
		{
			name: "valid parallel and sub-workflow",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{
				&StepNode{Step: noopStep("a")},
				&ParallelNode{Key: "group", Members: []Node{
					&SubWorkflowNode{Workflow: child, Input: Ref("a")},
					&StepNode{Step: noopStep("b"), Input: Ref("a")},
				}},
				&StepNode{Step: noopStep("c"), Input: Pick("child", "b", "group")},
			}},
		},
		{
			name: "same step twice with alias",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{
				&StepNode{Step: noopStep("query")},
				&StepNode{Step: noopStep("query"), Alias: "query-2"},
			}},
		},
		{name: "nil definition", def: nil, wantErr: true},
		{name: "missing id", def: &WorkflowDefinition{Nodes: []Node{&StepNode{Step: noopStep("a")}}}, wantErr: true},
		{name: "no nodes", def: &WorkflowDefinition{ID: "wf"}, wantErr: true},
		{
			name:    "nil node",
			def:     &WorkflowDefinition{ID: "wf", Nodes: []Node{nil}},
			wantErr: true,
		},
		{
			name:     "duplicate names",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&StepNode{Step: noopStep("a")}, &StepNode{Step: noopStep("a")}}},
			wantNode: "a",
			wantErr:  true,
		},
		{
			name:     "reserved input name",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&StepNode{Step: noopStep(InputKey)}}},
			wantNode: InputKey,
			wantErr:  true,
		},
		{
			name:     "missing invoke",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&StepNode{Step: Step{Name: "a"}}}},
			wantNode: "a",
			wantErr:  true,
		},
		{
			name:     "missing transform fn",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&TransformNode{Key: "t"}}},
			wantNode: "t",
			wantErr:  true,
		},
		{
			name:     "unresolved dependency",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&StepNode{Step: noopStep("a"), Input: Ref("later")}, &StepNode{Step: noopStep("later")}}},
			wantNode: "a",
			wantErr:  true,
		},
		{
			name:     "unresolved output",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&StepNode{Step: noopStep("a")}}, Output: Ref("nope")},
			wantNode: "output",
			wantErr:  true,
		},
		{
			name: "sibling dependency",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{&ParallelNode{Key: "g", Members: []Node{
				&StepNode{Step: noopStep("x")},
				&StepNode{Step: noopStep("y"), Input: Ref("x")},
			}}}},
			wantNode: "y",
			wantErr:  true,
		},
		{
			name: "nested parallel",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{&ParallelNode{Key: "g", Members: []Node{
				&ParallelNode{Key: "inner", Members: []Node{&StepNode{Step: noopStep("x")}}},
			}}}},
			wantNode: "inner",
			wantErr:  true,
		},
		{
			name:     "empty parallel",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&ParallelNode{Key: "g"}}},
			wantNode: "g",
			wantErr:  true,
		},
		{
			name: "member name clashes with earlier node",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{
				&StepNode{Step: noopStep("x")},
				&ParallelNode{Key: "g", Members: []Node{&StepNode{Step: noopStep("x")}}},
			}},
			wantNode: "x",
			wantErr:  true,
		},
		{
			name:     "nil sub-workflow",
			def:      &WorkflowDefinition{ID: "wf", Nodes: []Node{&SubWorkflowNode{Key: "sub"}}},
			wantNode: "sub",
			wantErr:  true,
		},
		{
			name: "invalid sub-workflow",
			def: &WorkflowDefinition{ID: "wf", Nodes: []Node{
				&SubWorkflowNode{Workflow: &WorkflowDefinition{ID: "broken"}},
			}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}

			var gerr *GraphDefinitionError
			require.True(t, errors.As(err, &gerr), "expected GraphDefinitionError, got %v", err)
			if tc.wantNode != "" {
				require.Equal(t, tc.wantNode, gerr.Node)
			}
		})
	}
}

func TestParallelNodeDepsUnionMembers(t *testing.T) {
	p := &ParallelNode{Key: "g", Members: []Node{
		&StepNode{Step: noopStep("x"), Input: Ref("a")},
		&StepNode{Step: noopStep("y"), Input: Pick("b", "c")},
	}}
	require.Equal(t, []string{"a", "b", "c"}, p.Deps())
	require.Equal(t, KindParallel, p.Kind())
}

func TestNodeNames(t *testing.T) {
	require.Equal(t, "alias", (&StepNode{Step: noopStep("s"), Alias: "alias"}).Name())
	require.Equal(t, "s", (&StepNode{Step: noopStep("s")}).Name())
	require.Equal(t, "child", (&SubWorkflowNode{Workflow: &WorkflowDefinition{ID: "child"}}).Name())
	require.Equal(t, "key", (&SubWorkflowNode{Key: "key", Workflow: &WorkflowDefinition{ID: "child"}}).Name())
}

func TestGraphDefinitionErrorMessage(t *testing.T) {
	err := &GraphDefinitionError{Workflow: "wf", Node: "a", Reason: "boom"}
	require.Equal(t, `invalid workflow graph "wf" at node "a": boom`, err.Error())
}
