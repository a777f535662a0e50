// Package api contains the core building blocks used by the sagaflow
// engine: steps and their compensations, the workflow graph, the execution
// record and the collaborator interfaces a run talks to.
//
// Most users interact with the higher-level sagaflow package, which re-exports
// selected types and provides the fluent FlowBuilder. The api package is
// intended for custom integrations, domain step libraries, and contributors
// extending the engine itself.
//
// # Steps
//
// A Step is the smallest unit of work. It pairs an InvokeFunc that performs
// a side effect with an optional CompensateFunc that undoes it. Returning a
// StepResponse from invoke lets a step hand different data to downstream
// nodes (Output) and to its compensation (CompensateInput):
//
//	func(ctx context.Context, ec *api.ExecutionContext, in any) (any, error) {
//	    prev := snapshot(in)
//	    updated := update(in)
//	    return api.NewStepResponseWithCompensation(updated, prev), nil
//	}
//
// Compensations must be idempotent and are never retried.
//
// # Workflow graphs
//
// A WorkflowDefinition is an ordered list of nodes: steps, pure transforms,
// parallel groups and nested sub-workflows. Every node stores its output in
// the run's Data under its name; a node's Binding declares which names it
// reads. Validate rejects duplicate names, unresolved dependencies and
// parallel members that depend on each other with a *GraphDefinitionError.
//
// # Execution record and failures
//
// Each run keeps an ExecutionRecord of completed nodes in completion order.
// When a node fails, the engine walks the record in reverse and compensates
// every succeeded step exactly once. The caller receives a *WorkflowError
// naming the failing node and its cause. Compensated reports whether the
// rollback completed.
//
// # Collaborators
//
// Steps reach the outside world through the ExecutionContext: a zap logger
// tagged with the run, a Query for reads and an EventSink for
// notifications. Observers receive lifecycle callbacks for logging and
// metrics.
package api
