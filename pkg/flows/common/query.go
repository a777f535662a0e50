// Package common provides steps shared by the sample workflows.
package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/petrijr/sagaflow/pkg/api"
)

// QueryOptions tunes UseQueryStep.
type QueryOptions struct {
	// ThrowIfKeyNotFound fails the step when a filtered key matches nothing.
	ThrowIfKeyNotFound bool

	// List returns every match. T must then be a slice type.
	List bool
}

// UseQueryStep returns a step that reads entryPoint through the run's
// Query collaborator. The step input is the variables map used to filter
// the entity; the result is decoded into T. The step has nothing to
// compensate.
func UseQueryStep[T any](name, entryPoint string, fields []string, opts QueryOptions) api.Step {
	return api.TypedStep(name, func(ctx context.Context, ec *api.ExecutionContext, vars map[string]any) (T, error) {
		var zero T
		res, err := ec.Query.Graph(ctx, api.QueryRequest{
			EntryPoint:         entryPoint,
			Fields:             fields,
			Variables:          vars,
			ThrowIfKeyNotFound: opts.ThrowIfKeyNotFound,
			List:               opts.List,
		})
		if err != nil {
			return zero, err
		}
		return Decode[T](res)
	})
}

// Decode converts a query result into T. Values that already are a T are
// returned as is; anything else goes through its JSON representation.
func Decode[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode query result: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode query result into %T: %w", out, err)
	}
	return out, nil
}

// Vars builds the input binding of a query step: a single variable key
// whose value is computed from the workflow data.
func Vars(key string, fn func(d api.Data) (any, error), deps ...string) api.Binding {
	return api.Bind(func(d api.Data) (any, error) {
		v, err := fn(d)
		if err != nil {
			return nil, err
		}
		return map[string]any{key: v}, nil
	}, deps...)
}
