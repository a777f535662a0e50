package api

import (
	"sync"
	"time"
)

// EntryStatus is the state of a single ExecutionRecord entry.
type EntryStatus string

const (
	EntryPending            EntryStatus = "PENDING"
	EntrySucceeded          EntryStatus = "SUCCEEDED"
	EntryFailed             EntryStatus = "FAILED"
	EntryCompensated        EntryStatus = "COMPENSATED"
	EntryCompensationFailed EntryStatus = "COMPENSATION_FAILED"
)

// RecordEntry is the ledger line of one executed node.
type RecordEntry struct {
	StepName string
	Kind     NodeKind
	Status   EntryStatus

	// Result is the node output handed to downstream nodes.
	Result any
	// CompensateInput is what Compensate receives.
	CompensateInput any

	// Error holds the invoke, transform or compensation failure, if any.
	Error error

	StartedAt time.Time
	EndedAt   time.Time
	Attempts  int

	// Group is the name of the parallel group the node ran in, if any.
	Group string

	// Children is the record of a sub-workflow node.
	Children *ExecutionRecord

	// Compensate is the step's compensation. It is not persisted.
	Compensate CompensateFunc
}

// Compensable reports whether e should be compensated during rollback.
func (e *RecordEntry) Compensable() bool {
	if e.Status != EntrySucceeded {
		return false
	}
	return e.Compensate != nil || e.Children != nil
}

// ExecutionRecord is the per-run ledger of executed nodes, ordered by
// completion. It is safe for concurrent use.
type ExecutionRecord struct {
	RunID      string
	WorkflowID string

	mu      sync.Mutex
	entries []*RecordEntry
}

// NewExecutionRecord creates an empty record.
func NewExecutionRecord(runID, workflowID string) *ExecutionRecord {
	return &ExecutionRecord{
		RunID:      runID,
		WorkflowID: workflowID,
	}
}

// Append adds e at the end of the record (i.e. as the latest completion).
func (r *ExecutionRecord) Append(e *RecordEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns the entries in completion order. The slice is a copy; the
// entries are shared.
func (r *ExecutionRecord) Entries() []*RecordEntry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RecordEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Entry returns the latest entry for the given step name.
func (r *ExecutionRecord) Entry(stepName string) (*RecordEntry, bool) {
	entries := r.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].StepName == stepName {
			return entries[i], true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (r *ExecutionRecord) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CountByStatus returns the number of entries with the given status.
func (r *ExecutionRecord) CountByStatus(s EntryStatus) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Status == s {
			n++
		}
	}
	return n
}

// SetStatus updates the status (and error) of e under the record lock so
// that readers never observe a torn update.
func (r *ExecutionRecord) SetStatus(e *RecordEntry, s EntryStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Status = s
	if err != nil {
		e.Error = err
	}
}
