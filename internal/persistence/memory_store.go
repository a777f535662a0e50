package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/sagaflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe RunStore backed by a map.
//
// It stores copies of runs, so later mutations by the engine are only
// visible after UpdateRun. Values are not encoded and compensation functions
// are kept.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*api.WorkflowRun
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]*api.WorkflowRun),
	}
}

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	cp := copyRun(run)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cp
	return nil
}

func (s *InMemoryStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	cp := copyRun(run)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}

	s.runs[run.ID] = cp
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return copyRun(run), nil
}

func (s *InMemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowRun
	for _, run := range s.runs {
		if !filter.Matches(run) {
			continue
		}
		result = append(result, copyRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

func copyRun(run *api.WorkflowRun) *api.WorkflowRun {
	cp := *run
	cp.EventErrors = append([]error(nil), run.EventErrors...)
	cp.Record = copyRecord(run.Record, run.ID, run.WorkflowID)
	return &cp
}

func copyRecord(rec *api.ExecutionRecord, runID, workflowID string) *api.ExecutionRecord {
	if rec == nil {
		return api.NewExecutionRecord(runID, workflowID)
	}
	out := api.NewExecutionRecord(rec.RunID, rec.WorkflowID)
	for _, e := range rec.Entries() {
		ec := *e
		if e.Children != nil {
			ec.Children = copyRecord(e.Children, rec.RunID, e.StepName)
		}
		out.Append(&ec)
	}
	return out
}
