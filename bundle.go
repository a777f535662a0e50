package sagaflow

import (
	"database/sql"

	"github.com/petrijr/sagaflow/internal/taskqueue"
	workerpkg "github.com/petrijr/sagaflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; the public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Runs and queued tasks are persisted in the
// provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:sagaflow.db?_pragma=journal_mode(WAL)")
//	bundle, err := sagaflow.NewSQLiteBundle(db, worker.Config{MaxAttempts: 3})
//	// register workflows on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return NewWorkerBundle(eng, q, cfg), nil
}

// NewWorkerBundle combines an existing Engine and Queue with a new Worker.
// It is used by the backend packages to build their bundles.
func NewWorkerBundle(eng Engine, q Queue, cfg workerpkg.Config) *WorkerBundle {
	return &WorkerBundle{
		Engine: eng,
		Worker: workerpkg.NewWithConfig(eng, q, cfg),
		queue:  q,
	}
}

// Pending returns the approximate number of queued tasks.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
