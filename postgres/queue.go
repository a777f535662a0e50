package postgres

import (
	"context"
	"database/sql"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/worker"

	pqueue "github.com/petrijr/sagaflow/postgres/internal/taskqueue"
)

// NewPostgresQueue returns a task queue stored in the run_tasks table.
func NewPostgresQueue(ctx context.Context, db *sql.DB) (sagaflow.Queue, error) {
	return pqueue.NewPostgresQueue(ctx, db)
}

// NewPostgresBundle returns an Engine, queue and Worker sharing db.
func NewPostgresBundle(ctx context.Context, db *sql.DB, cfg worker.Config) (*sagaflow.WorkerBundle, error) {
	eng, err := NewPostgresEngineWithConfig(ctx, db, sagaflow.EngineConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	q, err := NewPostgresQueue(ctx, db)
	if err != nil {
		return nil, err
	}
	return sagaflow.NewWorkerBundle(eng, q, cfg), nil
}
