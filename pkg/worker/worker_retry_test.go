package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/internal/engine"
	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
)

var errStoreDown = errors.New("store unavailable")

// flakyStore fails the first saveFailures SaveRun calls.
type flakyStore struct {
	persistence.RunStore
	saveFailures atomic.Int32
}

func (s *flakyStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	if s.saveFailures.Add(-1) >= 0 {
		return errStoreDown
	}
	return s.RunStore.SaveRun(ctx, run)
}

func newFlakyEngine(t *testing.T, failures int32) api.Engine {
	t.Helper()
	store := &flakyStore{RunStore: persistence.NewInMemoryStore()}
	store.saveFailures.Store(failures)

	eng := engine.NewEngine(store)
	require.NoError(t, eng.RegisterWorkflow(addOneWorkflow()))
	return eng
}

func TestWorker_InfrastructureFailureRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	eng := newFlakyEngine(t, 1)
	queue := taskqueue.NewInMemoryQueue(10)

	backoff := 30 * time.Millisecond
	w := NewWithConfig(eng, queue, Config{MaxAttempts: 3, Backoff: backoff})

	require.NoError(t, w.EnqueueRun(ctx, "async-add", 1))

	start := time.Now()

	// First attempt fails on the store and schedules a retry.
	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)
	require.Equal(t, 1, queue.Len())

	// Second attempt is held back by the backoff and then succeeds.
	processed, err = w.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), backoff/2)

	runs, err := eng.ListRuns(ctx, api.RunListOptions{WorkflowID: "async-add"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 2, runs[0].Output)
}

func TestWorker_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	eng := newFlakyEngine(t, 10)
	queue := taskqueue.NewInMemoryQueue(10)
	w := NewWithConfig(eng, queue, Config{MaxAttempts: 2, Backoff: time.Millisecond})

	require.NoError(t, w.EnqueueRun(ctx, "async-add", 1))

	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)
	require.NoError(t, err)

	processed, err = w.ProcessOne(ctx)
	require.True(t, processed)
	require.ErrorIs(t, err, errStoreDown)
	require.Zero(t, queue.Len())
}

func TestWorker_CompensatedRunIsNotRetried(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewInMemoryEngine()
	queue := taskqueue.NewInMemoryQueue(10)
	w := NewWithConfig(eng, queue, Config{MaxAttempts: 5, Backoff: time.Millisecond})

	var compensations atomic.Int32
	require.NoError(t, eng.RegisterWorkflow(&api.WorkflowDefinition{
		ID: "declined",
		Nodes: []api.Node{
			&api.StepNode{Step: api.Step{
				Name: "reserve",
				Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
					return "reservation", nil
				},
				Compensate: func(ctx context.Context, ec *api.ExecutionContext, data any) error {
					compensations.Add(1)
					return nil
				},
			}},
			&api.StepNode{Step: api.Step{
				Name: "charge",
				Invoke: func(ctx context.Context, ec *api.ExecutionContext, input any) (any, error) {
					return nil, errors.New("card declined")
				},
			}},
		},
	}))

	require.NoError(t, w.EnqueueRun(ctx, "declined", nil))

	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)

	var we *api.WorkflowError
	require.ErrorAs(t, err, &we)
	require.True(t, we.Compensated)
	require.Zero(t, queue.Len(), "business failures are not re-enqueued")
	require.Equal(t, int32(1), compensations.Load())
}
