package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/sagaflow/pkg/api"
)

type workflowRegistry struct {
	mu   sync.RWMutex
	byID map[string]*api.WorkflowDefinition
}

func newWorkflowRegistry() *workflowRegistry {
	return &workflowRegistry{
		byID: make(map[string]*api.WorkflowDefinition),
	}
}

func (r *workflowRegistry) Register(def *api.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("%w: %s", api.ErrWorkflowExists, def.ID)
	}

	r.byID[def.ID] = def
	return nil
}

func (r *workflowRegistry) Get(id string) (*api.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, id)
	}
	return def, nil
}
