package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/sagaflow/internal/persistence"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// Tasks are handed out in NotBefore order, FIFO among equally eligible
// tasks. A task is claimed by deleting its row, so concurrent consumers
// never receive the same task twice.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			payload BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_tasks_not_before ON run_tasks(not_before, seq);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := persistence.EncodeValue(t.Payload)
	if err != nil {
		return err
	}

	enqueuedAt := t.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = enqueuedAt
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO run_tasks (id, type, workflow_id, payload, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.WorkflowID,
		payload,
		enqueuedAt.UnixNano(),
		notBefore.UnixNano(),
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim removes and returns the first eligible task, or nil when none is
// eligible or another consumer won the race for it.
func (q *SQLiteQueue) claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq        int64
		task       Task
		typ        string
		payload    []byte
		enqueuedAt int64
		notBefore  int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT seq, id, type, workflow_id, payload, enqueued_at, not_before, attempts
		FROM run_tasks
		WHERE not_before <= ?
		ORDER BY not_before, seq
		LIMIT 1`, time.Now().UnixNano(),
	).Scan(&seq, &task.ID, &typ, &task.WorkflowID, &payload, &enqueuedAt, &notBefore, &task.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM run_tasks WHERE seq = ?`, seq)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task.Type = TaskType(typ)
	task.EnqueuedAt = time.Unix(0, enqueuedAt)
	task.NotBefore = time.Unix(0, notBefore)
	task.Payload, err = persistence.DecodeValue(payload)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM run_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
