package api

import (
	"context"
	"fmt"
)

// InvokeFunc performs the side effect of a step. input is the value produced
// by the step's Binding; ec carries the collaborators of the current run.
//
// Returning a StepResponse lets a step hand different data to its
// compensation than to downstream nodes.
type InvokeFunc func(ctx context.Context, ec *ExecutionContext, input any) (any, error)

// CompensateFunc undoes the side effect of a previously successful invoke.
// data is the invoke's compensation input (see StepResponse).
//
// Compensations must be idempotent and must not themselves need compensation.
type CompensateFunc func(ctx context.Context, ec *ExecutionContext, data any) error

// FailurePolicy controls how the orchestrator reacts when a step's invoke fails.
type FailurePolicy int

const (
	// FailureRollback fails the run and compensates every completed step.
	FailureRollback FailurePolicy = iota

	// FailureContinue records the failure and carries on. Committed work is
	// not unwound. Intended for terminal, best-effort steps such as event
	// emission.
	FailureContinue
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureRollback:
		return "rollback"
	case FailureContinue:
		return "continue"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// Step is the smallest unit of work: an invoke function plus an optional
// compensation, identified by a name that is unique within a workflow.
type Step struct {
	Name       string
	Invoke     InvokeFunc
	Compensate CompensateFunc
	OnFailure  FailurePolicy
}

// StepResponse separates what a step returns to the workflow (Output) from
// what its compensation receives (CompensateInput).
//
// A step that updates rows, for example, returns the updated rows as Output
// and the previous rows as CompensateInput so that the compensation can
// restore them.
type StepResponse struct {
	Output          any
	CompensateInput any
}

// NewStepResponse returns a StepResponse whose compensation input equals its
// output.
func NewStepResponse(output any) StepResponse {
	return StepResponse{Output: output, CompensateInput: output}
}

// NewStepResponseWithCompensation returns a StepResponse with a dedicated
// compensation input.
func NewStepResponseWithCompensation(output, compensateInput any) StepResponse {
	return StepResponse{Output: output, CompensateInput: compensateInput}
}

// SplitResult unpacks the value returned by an InvokeFunc into the step's
// output and compensation input.
func SplitResult(v any) (output, compensateInput any) {
	switch r := v.(type) {
	case StepResponse:
		return r.Output, r.CompensateInput
	case *StepResponse:
		if r == nil {
			return nil, nil
		}
		return r.Output, r.CompensateInput
	default:
		return v, v
	}
}

// TypedStep wraps a strongly-typed invoke function into a Step.
//
//	step := api.TypedStep("reserve", func(ctx context.Context, ec *api.ExecutionContext, in Order) (Reservation, error) {
//	    ...
//	})
func TypedStep[I, O any](name string, fn func(ctx context.Context, ec *ExecutionContext, in I) (O, error)) Step {
	return Step{
		Name: name,
		Invoke: func(ctx context.Context, ec *ExecutionContext, input any) (any, error) {
			in, err := convert[I](input)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", name, err)
			}
			return fn(ctx, ec, in)
		},
	}
}

// TypedCompensation wraps a strongly-typed compensation function.
func TypedCompensation[C any](fn func(ctx context.Context, ec *ExecutionContext, data C) error) CompensateFunc {
	return func(ctx context.Context, ec *ExecutionContext, data any) error {
		c, err := convert[C](data)
		if err != nil {
			return fmt.Errorf("compensation: %w", err)
		}
		return fn(ctx, ec, c)
	}
}

// WithCompensation returns a copy of s using compensate.
func (s Step) WithCompensation(compensate CompensateFunc) Step {
	s.Compensate = compensate
	return s
}

// WithFailurePolicy returns a copy of s using policy.
func (s Step) WithFailurePolicy(policy FailurePolicy) Step {
	s.OnFailure = policy
	return s
}

// convert casts v to T. A nil v yields the zero value of T.
func convert[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	return zero, fmt.Errorf("expected %T, got %T", zero, v)
}
