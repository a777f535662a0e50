// Package worker drives workflow runs from a task queue.
//
// A Worker dequeues start-run tasks and hands them to an api.Engine. Runs
// that fail with a *api.WorkflowError already compensated (or failed to
// compensate) inside the engine, so the worker reports them and moves on.
// Any other failure, typically a storage outage before the run could be
// recorded, is re-enqueued with exponential backoff until Config.MaxAttempts
// is reached.
//
// Multiple workers can safely consume the same queue to scale processing;
// every queue implementation hands a task to exactly one consumer.
//
// Most applications construct workers through sagaflow.NewLocalRunner, which
// wires an engine, a queue and a pool of workers together.
package worker
