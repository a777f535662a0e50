package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowNotFound is returned when no definition is registered under an ID.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists is returned when registering a duplicate workflow ID.
	ErrWorkflowExists = errors.New("workflow already registered")

	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")
)

// StepExecutionError is a business failure inside a step's invoke. It is
// always caught by the orchestrator and turned into a rollback; callers see
// it wrapped in a *WorkflowError.
type StepExecutionError struct {
	Step     string
	Attempts int
	Cause    error
}

func (e *StepExecutionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("step %q failed after %d attempts: %v", e.Step, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }

// CompensationError is a failure while undoing a completed step. It is fatal:
// automatic compensation stops and the run ends COMPENSATION_FAILED,
// requiring manual reconciliation.
type CompensationError struct {
	Step  string
	Cause error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %q failed: %v", e.Step, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// GraphDefinitionError reports structural misuse of the graph builder.
// It is raised at definition time, never while a run executes.
type GraphDefinitionError struct {
	Workflow string
	Node     string
	Reason   string
}

func (e *GraphDefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("invalid workflow graph")
	if e.Workflow != "" {
		fmt.Fprintf(&b, " %q", e.Workflow)
	}
	if e.Node != "" {
		fmt.Fprintf(&b, " at node %q", e.Node)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// TransformError is a failure of a pure transform. It denotes a programming
// defect: it is never retried and the transform itself is never compensated.
type TransformError struct {
	Transform string
	Cause     error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %q failed: %v", e.Transform, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

// WorkflowError is the typed failure returned by Engine.Run. It carries the
// node that triggered the rollback along with its cause.
type WorkflowError struct {
	WorkflowID string
	RunID      string

	// Step is the name of the node whose failure triggered the rollback.
	Step string

	// Cause is the triggering *StepExecutionError or *TransformError.
	Cause error

	// Compensated is true when every compensation ran successfully.
	Compensated bool

	// Compensation is set when the rollback itself failed.
	Compensation *CompensationError
}

func (e *WorkflowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %q run %s failed at %q: %v", e.WorkflowID, e.RunID, e.Step, e.Cause)
	switch {
	case e.Compensation != nil:
		fmt.Fprintf(&b, "; %v", e.Compensation)
	case e.Compensated:
		b.WriteString("; compensated")
	}
	return b.String()
}

// Unwrap exposes both the triggering cause and the compensation failure to
// errors.Is / errors.As.
func (e *WorkflowError) Unwrap() []error {
	errs := []error{e.Cause}
	if e.Compensation != nil {
		errs = append(errs, e.Compensation)
	}
	return errs
}

// IsCompensationFailure reports whether err carries a CompensationError,
// i.e. the run needs manual reconciliation.
func IsCompensationFailure(err error) bool {
	var ce *CompensationError
	return errors.As(err, &ce)
}

// FailedStep returns the name of the node that triggered a workflow failure.
func FailedStep(err error) (string, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Step, true
	}
	return "", false
}
