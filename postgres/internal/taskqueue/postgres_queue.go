package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	coreq "github.com/petrijr/sagaflow/internal/taskqueue"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS run_tasks (
//	    seq         BIGSERIAL PRIMARY KEY,
//	    id          TEXT NOT NULL,
//	    not_before  TIMESTAMPTZ NOT NULL,
//	    payload     BYTEA NOT NULL
//	);
//
// Eligible tasks come out in (not_before, seq) order. Several workers can
// share the table: claims use FOR UPDATE SKIP LOCKED.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

var _ coreq.Queue = (*PostgresQueue)(nil)

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(ctx context.Context, db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) initSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_tasks (
			seq        BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL,
			not_before TIMESTAMPTZ NOT NULL,
			payload    BYTEA NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_tasks_due ON run_tasks (not_before, seq);
	`)
	if err != nil {
		return fmt.Errorf("init run_tasks schema: %w", err)
	}
	return nil
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return err
	}

	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO run_tasks (id, not_before, payload)
		VALUES ($1, $2, $3)
	`, t.ID, notBefore, data)
	return err
}

// Dequeue blocks (with polling) until a task is available or ctx is cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	// Use a reusable timer to avoid allocating a new timer on every idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		<-tmr.C
	}
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

// claim deletes and returns the next due task, or nil when none is due.
func (q *PostgresQueue) claim(ctx context.Context) (*coreq.Task, error) {
	var payload []byte
	err := q.db.QueryRowContext(ctx, `
		DELETE FROM run_tasks
		WHERE seq = (
			SELECT seq FROM run_tasks
			WHERE not_before <= now()
			ORDER BY not_before, seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING payload
	`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return coreq.DecodeTask(payload)
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
