package api

import (
	"math"
	"time"
)

// Status represents the lifecycle state of a workflow run.
//
// A run moves through the following transitions:
//
//	RUNNING -> SUCCEEDED
//	RUNNING -> COMPENSATING -> COMPENSATED
//	RUNNING -> COMPENSATING -> COMPENSATION_FAILED
type Status string

const (
	StatusRunning            Status = "RUNNING"
	StatusSucceeded          Status = "SUCCEEDED"
	StatusCompensating       Status = "COMPENSATING"
	StatusCompensated        Status = "COMPENSATED"
	StatusCompensationFailed Status = "COMPENSATION_FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCompensated, StatusCompensationFailed:
		return true
	default:
		return false
	}
}

// InputKey is the Data key under which the workflow input is stored.
const InputKey = "input"

// Data holds the accumulated outputs of all completed nodes of a run,
// keyed by node name. The workflow input lives under InputKey.
type Data map[string]any

// Clone returns a shallow copy of d. Values are shared.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// WorkflowRun holds the state and result of a single workflow invocation.
type WorkflowRun struct {
	ID         string
	WorkflowID string
	Status     Status

	Input  any
	Output any

	// Err is nil for SUCCEEDED runs. For failed runs it is a *WorkflowError
	// (or, for runs read back from a durable store, a flattened error).
	Err error

	// Record is the execution ledger of this run.
	Record *ExecutionRecord

	// EventErrors collects failures of best-effort steps (event emission)
	// that did not unwind the run.
	EventErrors []error

	StartedAt time.Time
	EndedAt   time.Time
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// WorkflowID, if non-empty, limits results to runs of the given workflow.
	WorkflowID string

	// Status, if non-empty, limits results to runs with the given status.
	Status Status
}

// RetryPolicy controls how a step's invoke is retried when it returns an
// error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the first retry; each following delay
// is multiplied by BackoffMultiplier (2.0 when <= 0) and capped at
// MaxBackoff when MaxBackoff > 0.
//
// Compensations and transforms are never retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Policy returns p, so a RetryPolicy can be used wherever a policy source
// is accepted.
func (p RetryPolicy) Policy() RetryPolicy { return p }

// Attempts returns the total number of invocations p allows, at least 1.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait before retry n, where n is 1 for the first retry.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	m := p.BackoffMultiplier
	if m <= 0 {
		m = 2.0
	}
	d := float64(p.InitialBackoff) * math.Pow(m, float64(n-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
