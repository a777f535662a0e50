package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	msgs []EventMessage
	err  error
}

func (s *captureSink) Publish(ctx context.Context, msg EventMessage) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func TestEmitEventStepPublishes(t *testing.T) {
	sink := &captureSink{}
	step := EmitEventStep("emit-placed", "order.placed", WithEmitMetadata(map[string]string{"source": "test"}))
	require.Equal(t, FailureContinue, step.OnFailure)

	ec := &ExecutionContext{RunID: "r1", WorkflowID: "wf", Events: sink}
	out, err := step.Invoke(context.Background(), ec, map[string]string{"id": "order_1"})
	require.NoError(t, err)

	require.Len(t, sink.msgs, 1)
	msg := sink.msgs[0]
	require.Equal(t, out, msg)
	require.Equal(t, "order.placed", msg.Name)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, map[string]string{"id": "order_1"}, msg.Data)
	require.Equal(t, map[string]string{"workflow_id": "wf", "run_id": "r1", "source": "test"}, msg.Metadata)
}

func TestEmitEventStepErrors(t *testing.T) {
	step := EmitEventStep("emit", "x", WithEmitPolicy(FailureRollback))
	require.Equal(t, FailureRollback, step.OnFailure)

	_, err := step.Invoke(context.Background(), &ExecutionContext{}, nil)
	require.Error(t, err)

	boom := errors.New("bus down")
	_, err = step.Invoke(context.Background(), &ExecutionContext{Events: &captureSink{err: boom}}, nil)
	require.ErrorIs(t, err, boom)
}

func TestQueryFuncAdapter(t *testing.T) {
	var q Query = QueryFunc(func(ctx context.Context, req QueryRequest) (any, error) {
		return req.EntryPoint, nil
	})
	v, err := q.Graph(context.Background(), QueryRequest{EntryPoint: "order"})
	require.NoError(t, err)
	require.Equal(t, "order", v)
}
