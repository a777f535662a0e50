package sagaflow

import (
	"context"

	"github.com/petrijr/sagaflow/pkg/api"
)

// NewStep builds a Step from an invoke and an optional compensation.
func NewStep(name string, invoke InvokeFunc, compensate CompensateFunc) Step {
	return Step{Name: name, Invoke: invoke, Compensate: compensate}
}

// TypedStep wraps a strongly-typed function into a Step.
// Example:
//
//	sagaflow.TypedStep("reserve", func(ctx context.Context, ec *sagaflow.ExecutionContext, o Order) (Reservation, error) { ... })
func TypedStep[I, O any](name string, fn func(ctx context.Context, ec *ExecutionContext, in I) (O, error)) Step {
	return api.TypedStep(name, fn)
}

// TypedCompensation wraps a strongly-typed compensation function.
func TypedCompensation[C any](fn func(ctx context.Context, ec *ExecutionContext, data C) error) CompensateFunc {
	return api.TypedCompensation(fn)
}

// TypedTransform wraps a strongly-typed pure function into a TransformFunc.
func TypedTransform[I, O any](fn func(in I) (O, error)) TransformFunc {
	return api.TypedTransform(fn)
}

// EmitEventStep returns a best-effort step publishing its input to the
// run's event sink.
func EmitEventStep(name, eventName string, opts ...api.EmitOption) Step {
	return api.EmitEventStep(name, eventName, opts...)
}

// ContinueOnFailure marks step as best-effort: a failure is recorded on the
// run but does not unwind committed work.
func ContinueOnFailure(step Step) Step {
	return step.WithFailurePolicy(api.FailureContinue)
}
