package persistence

import (
	"time"

	"github.com/petrijr/sagaflow/pkg/api"
)

func sampleRun() *api.WorkflowRun {
	return &api.WorkflowRun{
		ID:         "run-1",
		WorkflowID: "wf",
		Status:     api.StatusRunning,
		Input:      "in",
		Record:     api.NewExecutionRecord("run-1", "wf"),
		StartedAt:  time.Now().UTC(),
	}
}
