package worker

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
)

func init() {
	gob.Register(StartRunPayload{})
}

// StartRunPayload is the payload for a "start-run" task.
type StartRunPayload struct {
	Input any
}

// Config controls how the worker retries tasks.
type Config struct {
	// MaxAttempts is the total number of times a task is processed before
	// its failure is returned. Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the first retry. It doubles on every
	// subsequent attempt.
	Backoff time.Duration

	// Logger receives task lifecycle logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Worker pulls tasks from a Queue and executes them using an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
	logger *zap.Logger
}

// New creates a new Worker that processes every task once.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a new Worker using cfg.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// EnqueueRun enqueues a task to start a run of workflowID asynchronously.
// It does NOT run the workflow itself; that is done by ProcessOne.
func (w *Worker) EnqueueRun(ctx context.Context, workflowID string, input any) error {
	return w.EnqueueRunAt(ctx, workflowID, input, time.Time{})
}

// EnqueueRunAt enqueues a start-run task that becomes eligible no earlier
// than at.
func (w *Worker) EnqueueRunAt(ctx context.Context, workflowID string, input any, at time.Time) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeStartRun,
		WorkflowID: workflowID,
		Payload:    StartRunPayload{Input: input},
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error.
//   - processed == true: a task was processed; err is the run's failure
//     once no retry is scheduled.
//
// A run that ends in a *api.WorkflowError (compensated or not) is a business
// outcome and is never retried. Other failures, such as a store outage, are
// re-enqueued with exponential backoff until MaxAttempts is reached.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	log := w.logger.With(
		zap.String("task_id", task.ID),
		zap.String("workflow_id", task.WorkflowID),
		zap.Int("attempt", task.Attempts+1),
	)

	switch task.Type {
	case taskqueue.TaskTypeStartRun:
		payload, ok := task.Payload.(StartRunPayload)
		if !ok {
			return true, fmt.Errorf("invalid payload type %T for start-run task", task.Payload)
		}

		run, runErr := w.engine.Run(ctx, task.WorkflowID, payload.Input)
		if runErr == nil {
			log.Debug("task_completed", zap.String("run_id", run.ID))
			return true, nil
		}
		if !retryable(runErr) {
			log.Info("task_failed", zap.Error(runErr))
			return true, runErr
		}
		return true, w.retry(ctx, log, *task, runErr)

	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

// Run processes tasks until ctx is cancelled. Task failures are logged and
// do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !processed {
			return err
		}
		if err != nil {
			w.logger.Warn("task_error", zap.Error(err))
		}
	}
}

func (w *Worker) retry(ctx context.Context, log *zap.Logger, task taskqueue.Task, cause error) error {
	task.Attempts++
	if task.Attempts >= w.cfg.MaxAttempts {
		log.Error("task_exhausted", zap.Error(cause))
		return cause
	}

	delay := w.cfg.Backoff << (task.Attempts - 1)
	task.NotBefore = time.Now().Add(delay)
	if err := w.queue.Enqueue(ctx, task); err != nil {
		return errors.Join(cause, fmt.Errorf("re-enqueue task %s: %w", task.ID, err))
	}
	log.Warn("task_retry_scheduled", zap.Duration("delay", delay), zap.Error(cause))
	return nil
}

// retryable reports whether err is an infrastructure failure worth another
// attempt.
func retryable(err error) bool {
	var we *api.WorkflowError
	if errors.As(err, &we) {
		return false
	}
	var ge *api.GraphDefinitionError
	if errors.Is(err, api.ErrWorkflowNotFound) || errors.As(err, &ge) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
