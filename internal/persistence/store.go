package persistence

import (
	"context"

	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = api.ErrRunNotFound

// RunFilter is used to select runs from the store.
// Empty string / zero status mean "no filter" for that field.
type RunFilter struct {
	WorkflowID string
	Status     api.Status
}

// Matches reports whether run passes the filter.
func (f RunFilter) Matches(run *api.WorkflowRun) bool {
	if f.WorkflowID != "" && run.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

// RunStore is the durable log of workflow runs. The engine saves a run when
// it starts and updates it after every state transition, so that a crashed
// process leaves behind enough information for an operator to reconcile.
//
// Stores persist a snapshot: compensation functions are not stored, and
// errors are flattened to their messages.
type RunStore interface {
	SaveRun(ctx context.Context, run *api.WorkflowRun) error
	UpdateRun(ctx context.Context, run *api.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*api.WorkflowRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error)
}
