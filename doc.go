// Package sagaflow is an embeddable saga orchestrator for Go.
//
// A workflow is an ordered graph of steps. Every step pairs an invoke
// function with an optional compensation. When a step fails, the engine
// undoes the work of every step that already completed by running their
// compensations in reverse completion order, exactly once each. Business
// transactions that span several services (reserve stock, authorize a
// payment, register a delivery) therefore either complete or leave no
// partial side effects behind.
//
// # Core Concepts
//
//  1. Step: a named invoke plus an optional compensation.
//  2. FlowBuilder: declares the graph of steps, transforms, parallel groups
//     and sub-workflows.
//  3. Engine: validates and registers definitions and executes runs.
//  4. ExecutionRecord: the per-run ledger the engine consults to compensate.
//  5. LocalRunner and WorkerBundle: queue-driven asynchronous execution.
//
// # Steps
//
// A step's invoke receives its resolved input and the run's
// *ExecutionContext (logger, query and event collaborators). Whatever it
// returns is stored under the step's name and handed to its compensation.
// Returning a StepResponse separates the two:
//
//	return sagaflow.StepResponse{Output: updated, CompensateInput: previous}, nil
//
// Compensations must be idempotent. A compensation failure is fatal: the
// rollback stops and the run ends COMPENSATION_FAILED for an operator to
// reconcile.
//
// # Graphs
//
// Nodes run in declaration order and each node sees the output of every
// earlier node through Bindings (Ref, Pick, Bind, Input, Value). Parallel
// groups run their members concurrently and settle only once every member
// finished. A sub-workflow is a single node of its parent: a failure inside
// it compensates the sub-workflow first, and a later failure in the parent
// compensates it as a unit. Transforms are pure functions that reshape
// data; they are never retried or compensated.
//
// Event emission steps are best-effort by default: a failed publish is
// recorded on the run but does not unwind committed work.
//
// Graph mistakes (duplicate names, unresolved bindings, parallel members
// depending on each other) are reported as *api.GraphDefinitionError when
// the workflow is built, never while it runs.
//
// # Persistence
//
// The engine persists every run through a RunStore after each node and each
// compensation. Stores exist for memory and SQLite in this package, and for
// PostgreSQL, Redis and MongoDB in the postgres, redis and mongo
// subpackages. Values are gob-encoded; register payload types with
// gob.Register.
//
// On startup call RecoverStuckRuns to mark runs interrupted by a crash as
// COMPENSATION_FAILED.
package sagaflow
