package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrRunInterrupted is the error recorded on runs that RecoverStuckRuns
// finds in a non-terminal state.
var ErrRunInterrupted = errors.New("run interrupted before reaching a terminal state; manual reconciliation required")

// engineImpl is a synchronous, in-process saga orchestrator. The goroutine
// calling Run drives the run to a terminal state; parallel groups fan out
// and are joined before the run moves on.
type engineImpl struct {
	registry     *workflowRegistry
	store        persistence.RunStore
	observer     api.Observer
	logger       *zap.Logger
	query        api.Query
	events       api.EventSink
	parallel     api.ParallelPolicy
	recoverAfter time.Duration

	// active holds the IDs of runs driven by this engine right now.
	active sync.Map
}

// Config describes how to construct an engine.
type Config struct {
	// Store is the durable run log. Defaults to an in-memory store.
	Store persistence.RunStore

	// Observer receives lifecycle callbacks. Defaults to api.NoopObserver.
	Observer api.Observer

	// Logger is the base logger handed to steps through the
	// ExecutionContext. Defaults to a no-op logger.
	Logger *zap.Logger

	// Query is the read collaborator exposed to steps.
	Query api.Query

	// Events is the event sink exposed to steps. Defaults to
	// api.NoopEventSink.
	Events api.EventSink

	// ParallelPolicy applies to parallel groups that leave Policy at its
	// zero value (ParallelWaitAll).
	ParallelPolicy api.ParallelPolicy

	// RecoverAfter is the minimum age of a run RecoverStuckRuns may mark
	// as interrupted. With zero, every non-terminal run not driven by this
	// engine is recovered, which is only safe when a single process uses
	// the store.
	RecoverAfter time.Duration
}

// NewInMemoryEngine returns an Engine that keeps runs in memory.
func NewInMemoryEngine() api.Engine {
	return NewEngine(persistence.NewInMemoryStore())
}

// NewSQLiteEngine returns an Engine that persists runs in SQLite.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store), nil
}

// NewEngine returns an Engine backed by the given store.
func NewEngine(store persistence.RunStore) api.Engine {
	return NewEngineWithConfig(Config{Store: store})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	return newEngine(cfg)
}

func newEngine(cfg Config) *engineImpl {
	e := &engineImpl{
		registry:     newWorkflowRegistry(),
		store:        cfg.Store,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
		query:        cfg.Query,
		events:       cfg.Events,
		parallel:     cfg.ParallelPolicy,
		recoverAfter: cfg.RecoverAfter,
	}
	if e.store == nil {
		e.store = persistence.NewInMemoryStore()
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.query == nil {
		e.query = api.QueryFunc(func(ctx context.Context, req api.QueryRequest) (any, error) {
			return nil, fmt.Errorf("no query collaborator configured (entry point %q)", req.EntryPoint)
		})
	}
	if e.events == nil {
		e.events = api.NoopEventSink{}
	}
	return e
}

func (e *engineImpl) RegisterWorkflow(def *api.WorkflowDefinition) error {
	return e.registry.Register(def)
}

func (e *engineImpl) Run(ctx context.Context, workflowID string, input any) (*api.WorkflowRun, error) {
	def, err := e.registry.Get(workflowID)
	if err != nil {
		return nil, err
	}

	run := &api.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: def.ID,
		Status:     api.StatusRunning,
		Input:      input,
		StartedAt:  time.Now().UTC(),
	}
	run.Record = api.NewExecutionRecord(run.ID, def.ID)

	// Persist the run as soon as it starts.
	if err := e.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	e.active.Store(run.ID, struct{}{})
	defer e.active.Delete(run.ID)

	e.observer.OnRunStart(ctx, run)

	ex := e.newExecution(run)
	data := api.Data{api.InputKey: input}

	output, fail := ex.runDefinition(ctx, def, ex.ec, run.Record, data, func() {
		e.persist(ctx, run)
	})
	if fail == nil {
		run.Status = api.StatusSucceeded
		run.Output = output
		run.EndedAt = time.Now().UTC()
		e.persist(ctx, run)
		e.observer.OnRunSucceeded(ctx, run)
		return run, nil
	}

	return run, ex.rollback(ctx, fail)
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrRunNotFound, id)
		}
		return nil, err
	}
	return run, nil
}

func (e *engineImpl) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.WorkflowRun, error) {
	return e.store.ListRuns(ctx, persistence.RunFilter{
		WorkflowID: opts.WorkflowID,
		Status:     opts.Status,
	})
}

func (e *engineImpl) RecoverStuckRuns(ctx context.Context) (int, error) {
	var stuck []*api.WorkflowRun
	for _, status := range []api.Status{api.StatusRunning, api.StatusCompensating} {
		runs, err := e.store.ListRuns(ctx, persistence.RunFilter{Status: status})
		if err != nil {
			return 0, err
		}
		stuck = append(stuck, runs...)
	}

	cutoff := time.Now().Add(-e.recoverAfter)
	recovered := 0
	var errs []error
	for _, run := range stuck {
		if _, running := e.active.Load(run.ID); running {
			continue
		}
		if e.recoverAfter > 0 && run.StartedAt.After(cutoff) {
			continue
		}

		run.Status = api.StatusCompensationFailed
		run.Err = ErrRunInterrupted
		run.EndedAt = time.Now().UTC()
		if err := e.store.UpdateRun(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("recover run %s: %w", run.ID, err))
			continue
		}

		e.logger.Warn("recovered interrupted run",
			zap.String("workflow_id", run.WorkflowID),
			zap.String("run_id", run.ID),
		)
		recovered++
	}

	return recovered, errors.Join(errs...)
}

// persist writes the current run state to the store. When the run cannot
// be stored as is, its payloads are dropped and the status is stored
// without them. Failures are logged: the run itself keeps going.
func (e *engineImpl) persist(ctx context.Context, run *api.WorkflowRun) {
	ctx = context.WithoutCancel(ctx)
	err := e.store.UpdateRun(ctx, run)
	if err == nil {
		return
	}

	log := e.logger.With(
		zap.String("workflow_id", run.WorkflowID),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
	)
	log.Warn("persist run failed, storing without payloads", zap.Error(err))

	if err := e.store.UpdateRun(ctx, withoutPayloads(run)); err != nil {
		log.Error("persist run status failed", zap.Error(err))
	}
}

// withoutPayloads copies run with its input, output and every recorded
// result and compensation input cleared.
func withoutPayloads(run *api.WorkflowRun) *api.WorkflowRun {
	cp := *run
	cp.Input = nil
	cp.Output = nil
	cp.Record = stripRecord(run.Record, run.ID, run.WorkflowID)
	return &cp
}

func stripRecord(rec *api.ExecutionRecord, runID, workflowID string) *api.ExecutionRecord {
	out := api.NewExecutionRecord(runID, workflowID)
	if rec == nil {
		return out
	}
	for _, entry := range rec.Entries() {
		e := *entry
		e.Result = nil
		e.CompensateInput = nil
		if entry.Children != nil {
			e.Children = stripRecord(entry.Children, runID, entry.Children.WorkflowID)
		}
		out.Append(&e)
	}
	return out
}
