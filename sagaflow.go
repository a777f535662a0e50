package sagaflow

import (
	"context"
	"database/sql"

	"github.com/petrijr/sagaflow/internal/engine"
	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	EngineConfig         = engine.Config
	RunStore             = persistence.RunStore
	Queue                = taskqueue.Queue
	Task                 = taskqueue.Task
	WorkflowDefinition   = api.WorkflowDefinition
	WorkflowRun          = api.WorkflowRun
	RunListOptions       = api.RunListOptions
	Status               = api.Status
	Step                 = api.Step
	StepResponse         = api.StepResponse
	InvokeFunc           = api.InvokeFunc
	CompensateFunc       = api.CompensateFunc
	TransformFunc        = api.TransformFunc
	Binding              = api.Binding
	Data                 = api.Data
	ExecutionContext     = api.ExecutionContext
	ExecutionRecord      = api.ExecutionRecord
	RetryPolicy          = api.RetryPolicy
	ParallelPolicy       = api.ParallelPolicy
	Query                = api.Query
	QueryRequest         = api.QueryRequest
	EventSink            = api.EventSink
	EventMessage         = api.EventMessage
	WorkflowError        = api.WorkflowError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver    = api.NewLoggingObserver
	NewCompositeObserver  = api.NewCompositeObserver
	NewStepResponse       = api.NewStepResponse
	IsCompensationFailure = api.IsCompensationFailure
	FailedStep            = api.FailedStep

	Ref   = api.Ref
	Input = api.Input
	Pick  = api.Pick
	Bind  = api.Bind
	Value = api.Value
)

// Re-export status values for convenience.

const (
	StatusRunning            = api.StatusRunning
	StatusSucceeded          = api.StatusSucceeded
	StatusCompensating       = api.StatusCompensating
	StatusCompensated        = api.StatusCompensated
	StatusCompensationFailed = api.StatusCompensationFailed

	ParallelWaitAll        = api.ParallelWaitAll
	ParallelCancelSiblings = api.ParallelCancelSiblings
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine whose runs live in process memory.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewEngineWithConfig(EngineConfig{Observer: obs})
}

// NewSQLiteEngine returns an Engine that persists runs in a SQLite
// database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewEngine returns an Engine built from cfg. Zero fields fall back to
// in-memory storage, a no-op observer and logger, and a no-op event sink.
func NewEngine(cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg)
}

// NewInMemoryStore returns a RunStore kept in process memory.
func NewInMemoryStore() RunStore {
	return persistence.NewInMemoryStore()
}

// NewSQLiteStore returns a RunStore backed by SQLite.
func NewSQLiteStore(db *sql.DB) (RunStore, error) {
	return persistence.NewSQLiteRunStore(db)
}

// NewSQLiteQueue returns a durable task queue stored in db.
func NewSQLiteQueue(db *sql.DB) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db)
}

// Convenience helpers that just forward to the underlying Engine.

// RunWorkflow runs a registered workflow synchronously.
func RunWorkflow(ctx context.Context, eng Engine, workflowID string, input any) (*WorkflowRun, error) {
	return eng.Run(ctx, workflowID, input)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*WorkflowRun, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*WorkflowRun, error) {
	return eng.ListRuns(ctx, opts)
}

// RecoverStuckRuns delegates to eng.RecoverStuckRuns.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := sagaflow.RecoverStuckRuns(ctx, engine)
func RecoverStuckRuns(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckRuns(ctx)
}
