package api

import (
	"context"
)

// Engine is the high-level orchestration API. Runs are executed
// synchronously by the calling goroutine.
type Engine interface {
	// RegisterWorkflow validates and registers a definition by ID.
	RegisterWorkflow(def *WorkflowDefinition) error

	// Run executes the workflow to a terminal state.
	//
	// On success it returns the run and a nil error. On failure it returns
	// the run (status COMPENSATED or COMPENSATION_FAILED) and a
	// *WorkflowError. Errors unrelated to the run itself (unknown workflow,
	// store failure before start) are returned with a nil run.
	Run(ctx context.Context, workflowID string, input any) (*WorkflowRun, error)

	// GetRun looks up a run by ID.
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*WorkflowRun, error)

	// RecoverStuckRuns scans for runs still marked RUNNING or COMPENSATING
	// (for example after a process crash) and marks them
	// COMPENSATION_FAILED so that an operator can reconcile them.
	//
	// It returns the number of runs it updated. Call it on process startup,
	// before accepting work. Runs started by another process sharing the
	// store are only safe from recovery when the engine is configured with
	// a minimum run age.
	RecoverStuckRuns(ctx context.Context) (int, error)
}
