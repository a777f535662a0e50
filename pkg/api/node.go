package api

import (
	"fmt"
	"time"
)

// NodeKind identifies the type of a workflow graph node.
type NodeKind string

const (
	KindStep        NodeKind = "step"
	KindParallel    NodeKind = "parallel"
	KindTransform   NodeKind = "transform"
	KindSubWorkflow NodeKind = "subworkflow"
)

// Node is a single entry of a workflow graph. Nodes are built once at
// definition time and never mutated while a run is in flight.
type Node interface {
	Kind() NodeKind
	// Name is the key under which the node's output is stored in Data.
	Name() string
	// Deps lists the Data keys the node reads.
	Deps() []string
}

// StepNode runs a Step.
type StepNode struct {
	Step Step

	// Alias overrides Step.Name as the node name. It allows the same step
	// to appear twice in one workflow (e.g. two query steps).
	Alias string

	Input   Binding
	Retry   *RetryPolicy
	Timeout time.Duration
}

func (n *StepNode) Kind() NodeKind { return KindStep }

func (n *StepNode) Name() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Step.Name
}

func (n *StepNode) Deps() []string { return n.Input.Deps }

// TransformFunc reshapes already computed values. It must be pure: no side
// effects, no I/O. A transform is never retried nor compensated.
type TransformFunc func(input any) (any, error)

// TypedTransform wraps a strongly-typed pure function into a TransformFunc.
func TypedTransform[I, O any](fn func(in I) (O, error)) TransformFunc {
	return func(input any) (any, error) {
		in, err := convert[I](input)
		if err != nil {
			return nil, err
		}
		return fn(in)
	}
}

// TransformNode runs a TransformFunc.
type TransformNode struct {
	Key   string
	Fn    TransformFunc
	Input Binding
}

func (n *TransformNode) Kind() NodeKind { return KindTransform }
func (n *TransformNode) Name() string   { return n.Key }
func (n *TransformNode) Deps() []string { return n.Input.Deps }

// ParallelPolicy decides what happens to the remaining members of a
// parallel group once one member fails. In both cases the group is only
// considered settled after every member returned.
type ParallelPolicy int

const (
	// ParallelWaitAll lets the remaining members run to natural completion.
	ParallelWaitAll ParallelPolicy = iota

	// ParallelCancelSiblings cancels the context shared by the members.
	ParallelCancelSiblings
)

// ParallelNode runs its members concurrently. Members must not depend on
// each other's output. The group's own output is a []any holding member
// outputs in declaration order; each member's output is also stored under
// the member's name.
type ParallelNode struct {
	Key     string
	Members []Node
	Policy  ParallelPolicy
}

func (n *ParallelNode) Kind() NodeKind { return KindParallel }
func (n *ParallelNode) Name() string   { return n.Key }

func (n *ParallelNode) Deps() []string {
	var deps []string
	for _, m := range n.Members {
		deps = append(deps, m.Deps()...)
	}
	return deps
}

// SubWorkflowNode runs a nested workflow as a single node of its parent.
type SubWorkflowNode struct {
	Key      string
	Workflow *WorkflowDefinition
	Input    Binding
}

func (n *SubWorkflowNode) Kind() NodeKind { return KindSubWorkflow }

func (n *SubWorkflowNode) Name() string {
	if n.Key == "" && n.Workflow != nil {
		return n.Workflow.ID
	}
	return n.Key
}

func (n *SubWorkflowNode) Deps() []string { return n.Input.Deps }

// WorkflowDefinition is an ordered execution plan.
type WorkflowDefinition struct {
	ID    string
	Nodes []Node

	// Output derives the workflow result. When zero, the output of the last
	// node is returned.
	Output Binding
}

// Validate checks the structural invariants of the graph: unique node
// names, known dependencies, and independent parallel members. It returns
// a *GraphDefinitionError describing the first violation.
func (def *WorkflowDefinition) Validate() error {
	if def == nil {
		return &GraphDefinitionError{Reason: "workflow definition is nil"}
	}
	if def.ID == "" {
		return &GraphDefinitionError{Reason: "workflow id is required"}
	}
	if len(def.Nodes) == 0 {
		return &GraphDefinitionError{Workflow: def.ID, Reason: "workflow must have at least one node"}
	}

	v := graphValidator{
		workflow: def.ID,
		produced: map[string]bool{InputKey: true},
	}

	for _, n := range def.Nodes {
		if err := v.node(n, nil); err != nil {
			return err
		}
		if p, ok := n.(*ParallelNode); ok {
			for _, m := range p.Members {
				v.produced[m.Name()] = true
			}
		}
		v.produced[n.Name()] = true
	}

	if err := v.deps("output", def.Output.Deps, nil); err != nil {
		return err
	}
	return nil
}

type graphValidator struct {
	workflow string
	produced map[string]bool
}

func (v *graphValidator) fail(node, format string, args ...any) error {
	return &GraphDefinitionError{
		Workflow: v.workflow,
		Node:     node,
		Reason:   fmt.Sprintf(format, args...),
	}
}

// node validates n. siblings is non-nil when n is a member of a parallel group.
func (v *graphValidator) node(n Node, siblings map[string]bool) error {
	if n == nil {
		return v.fail("", "nil node")
	}

	name := n.Name()
	if name == "" {
		return v.fail("", "%s node has no name", n.Kind())
	}
	if name == InputKey {
		return v.fail(name, "node name %q is reserved", InputKey)
	}
	if v.produced[name] || (siblings != nil && siblings[name]) {
		return v.fail(name, "node name %q is used more than once", name)
	}

	switch node := n.(type) {
	case *StepNode:
		if node.Step.Name == "" {
			return v.fail(name, "step has no name")
		}
		if node.Step.Invoke == nil {
			return v.fail(name, "step has no invoke function")
		}

	case *TransformNode:
		if node.Fn == nil {
			return v.fail(name, "transform has no function")
		}

	case *SubWorkflowNode:
		if node.Workflow == nil {
			return v.fail(name, "sub-workflow has no definition")
		}
		if err := node.Workflow.Validate(); err != nil {
			return err
		}

	case *ParallelNode:
		if siblings != nil {
			return v.fail(name, "parallel groups cannot be nested")
		}
		if len(node.Members) == 0 {
			return v.fail(name, "parallel group has no members")
		}
		members := make(map[string]bool, len(node.Members))
		for _, m := range node.Members {
			if m != nil && m.Name() == name {
				return v.fail(name, "node name %q is used more than once", name)
			}
		}
		for _, m := range node.Members {
			if err := v.node(m, members); err != nil {
				return err
			}
			members[m.Name()] = true
		}
		// Sibling dependencies are checked once all member names are known.
		for _, m := range node.Members {
			for _, d := range m.Deps() {
				if members[d] {
					return v.fail(m.Name(), "parallel member depends on sibling %q", d)
				}
			}
		}
		return nil

	default:
		return v.fail(name, "unsupported node type %T", n)
	}

	return v.deps(name, n.Deps(), siblings)
}

func (v *graphValidator) deps(node string, deps []string, siblings map[string]bool) error {
	for _, d := range deps {
		if siblings != nil && siblings[d] {
			return v.fail(node, "parallel member depends on sibling %q", d)
		}
		if !v.produced[d] {
			return v.fail(node, "unresolved dependency %q", d)
		}
	}
	return nil
}
