package sagaflow

import (
	"fmt"
	"time"

	"github.com/petrijr/sagaflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining workflows:
//
//	flow := sagaflow.New("place-order").
//	    Step(reserveStock, sagaflow.WithInput(sagaflow.Input())).
//	    Step(chargeCard, sagaflow.WithInput(sagaflow.Ref("reserve-stock"))).
//	    Emit("emit-placed", "order.placed", sagaflow.Ref("charge-card"))
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := sagaflow.RunWorkflow(ctx, engine, flow.ID(), input)
//
// Structural mistakes are collected and reported by Build and Register as
// a *api.GraphDefinitionError; the builder methods themselves never fail.
type FlowBuilder struct {
	def api.WorkflowDefinition
	err error
}

// New creates a new workflow builder with the given ID.
func New(id string) *FlowBuilder {
	return &FlowBuilder{
		def: api.WorkflowDefinition{ID: id},
	}
}

// ID returns the workflow ID.
func (b *FlowBuilder) ID() string {
	return b.def.ID
}

// NodeOption configures a node added through the builder.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	input   api.Binding
	alias   string
	retry   *api.RetryPolicy
	timeout time.Duration
}

// WithInput sets the binding that derives the node's input. Without it the
// node receives a snapshot of all data accumulated so far.
func WithInput(b api.Binding) NodeOption {
	return func(o *nodeOptions) { o.input = b }
}

// WithName overrides the node name, allowing the same step to appear more
// than once in a workflow.
func WithName(name string) NodeOption {
	return func(o *nodeOptions) { o.alias = name }
}

// WithRetry retries the step's invoke according to r. Steps only.
func WithRetry(r Retrier) NodeOption {
	return func(o *nodeOptions) {
		if r == nil {
			return
		}
		p := r.Policy()
		o.retry = &p
	}
}

// WithTimeout bounds every invoke attempt of the step. Steps only.
func WithTimeout(d time.Duration) NodeOption {
	return func(o *nodeOptions) { o.timeout = d }
}

func collect(opts []NodeOption) nodeOptions {
	var o nodeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (b *FlowBuilder) fail(node, format string, args ...any) {
	if b.err != nil {
		return
	}
	b.err = &api.GraphDefinitionError{
		Workflow: b.def.ID,
		Node:     node,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func (b *FlowBuilder) add(n api.Node) *FlowBuilder {
	b.def.Nodes = append(b.def.Nodes, n)
	return b
}

// Step appends a step node.
func (b *FlowBuilder) Step(step Step, opts ...NodeOption) *FlowBuilder {
	return b.add(stepNode(step, collect(opts)))
}

// Transform appends a pure data transform.
func (b *FlowBuilder) Transform(name string, fn TransformFunc, opts ...NodeOption) *FlowBuilder {
	o := collect(opts)
	if o.retry != nil || o.timeout > 0 {
		b.fail(name, "transforms cannot be retried or timed out")
	}
	return b.add(&api.TransformNode{Key: name, Fn: fn, Input: o.input})
}

// Member is a node that can take part in a parallel group.
type Member struct {
	node api.Node
}

// StepMember builds a step member for Parallel.
func StepMember(step Step, opts ...NodeOption) Member {
	return Member{node: stepNode(step, collect(opts))}
}

// SubWorkflowMember builds a sub-workflow member for Parallel. An empty
// name uses def.ID.
func SubWorkflowMember(name string, def *WorkflowDefinition, opts ...NodeOption) Member {
	o := collect(opts)
	return Member{node: &api.SubWorkflowNode{Key: name, Workflow: def, Input: o.input}}
}

// Parallel appends a group whose members run concurrently. The group
// settles only after every member finished. Its own output is the slice of
// member outputs in declaration order; each member's output is also
// available under the member's name.
func (b *FlowBuilder) Parallel(name string, members ...Member) *FlowBuilder {
	return b.parallel(name, api.ParallelWaitAll, members)
}

// ParallelCancelOnFailure is like Parallel but cancels the context shared
// by the members as soon as one of them fails.
func (b *FlowBuilder) ParallelCancelOnFailure(name string, members ...Member) *FlowBuilder {
	return b.parallel(name, api.ParallelCancelSiblings, members)
}

func (b *FlowBuilder) parallel(name string, policy api.ParallelPolicy, members []Member) *FlowBuilder {
	nodes := make([]api.Node, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, m.node)
	}
	return b.add(&api.ParallelNode{Key: name, Members: nodes, Policy: policy})
}

// SubWorkflow appends a nested workflow run as a single compensable node.
// An empty name uses def.ID.
func (b *FlowBuilder) SubWorkflow(name string, def *WorkflowDefinition, opts ...NodeOption) *FlowBuilder {
	o := collect(opts)
	if o.retry != nil || o.timeout > 0 {
		b.fail(name, "sub-workflows cannot be retried or timed out")
	}
	return b.add(&api.SubWorkflowNode{Key: name, Workflow: def, Input: o.input})
}

// Emit appends a best-effort event emission step publishing input under
// eventName. Place it after all compensable work.
func (b *FlowBuilder) Emit(name, eventName string, input Binding, opts ...api.EmitOption) *FlowBuilder {
	return b.add(&api.StepNode{Step: api.EmitEventStep(name, eventName, opts...), Input: input})
}

// Returns sets the binding deriving the workflow output. Without it the
// output of the last node is returned.
func (b *FlowBuilder) Returns(output Binding) *FlowBuilder {
	b.def.Output = output
	return b
}

// Build validates the graph and returns the definition.
func (b *FlowBuilder) Build() (*WorkflowDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	def := b.def
	def.Nodes = append([]api.Node(nil), b.def.Nodes...)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// MustBuild is like Build but panics on error. Useful for package-level
// sub-workflow definitions.
func (b *FlowBuilder) MustBuild() *WorkflowDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// Register builds the workflow and registers it with the given engine.
func (b *FlowBuilder) Register(eng Engine) error {
	def, err := b.Build()
	if err != nil {
		return err
	}
	return eng.RegisterWorkflow(def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}

func stepNode(step Step, o nodeOptions) *api.StepNode {
	return &api.StepNode{
		Step:    step,
		Alias:   o.alias,
		Input:   o.input,
		Retry:   o.retry,
		Timeout: o.timeout,
	}
}
