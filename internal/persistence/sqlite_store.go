package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/petrijr/sagaflow/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			snapshot BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs (status);`,
	)
	return err
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, error, started_at, ended_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WorkflowID,
		string(run.Status),
		errString(run.Err),
		run.StartedAt.UnixNano(),
		endedAt(run),
		data,
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := EncodeRun(run)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET workflow_id = ?, status = ?, error = ?, ended_at = ?, snapshot = ?
		WHERE id = ?`,
		run.WorkflowID,
		string(run.Status),
		errString(run.Err),
		endedAt(run),
		data,
		run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM workflow_runs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return DecodeRun(data)
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.WorkflowRun, error) {
	query := `SELECT snapshot FROM workflow_runs`
	var args []any
	var clauses []string

	if filter.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.WorkflowRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		run, err := DecodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// endedAt returns the run end time in Unix nanoseconds, or nil while the run
// is in flight.
func endedAt(run *api.WorkflowRun) any {
	if run.EndedAt.IsZero() {
		return nil
	}
	return run.EndedAt.UnixNano()
}
