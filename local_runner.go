package sagaflow

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a Worker
// to provide a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := sagaflow.NewLocalRunner()
//	flow := sagaflow.New("my-flow").Step(...)
//	flow.MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	run, err := sagaflow.RunWorkflow(ctx, runner.Engine, flow.ID(), input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartRunAsync(ctx, flow.ID(), input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithEngine(NewInMemoryEngine(), zap.NewNop())
}

// NewLocalRunnerWithEngine constructs a LocalRunner around eng. Worker
// errors are logged to logger.
func NewLocalRunnerWithEngine(eng Engine, logger *zap.Logger) *LocalRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := taskqueue.NewInMemoryQueue(1024)
	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: worker.NewWithConfig(eng, q, worker.Config{Logger: logger}),
		logger: logger,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("sagaflow: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err == nil {
					continue
				}
				// Cancellation is a clean shutdown signal.
				if !processed && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
					return
				}
				// A single bad run must not kill the worker loop.
				r.logger.Warn("local runner task failed", zap.Error(err))
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartRunAsync enqueues a task to start the given workflow asynchronously.
// The workflow must already be registered on LocalRunner.Engine.
func (r *LocalRunner) StartRunAsync(ctx context.Context, workflowID string, input any) error {
	return r.Worker.EnqueueRun(ctx, workflowID, input)
}
