package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	corep "github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresRunStore struct {
	db *sql.DB
}

var _ corep.RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema in the given
// database and returns a new PostgresRunStore.
func NewPostgresRunStore(ctx context.Context, db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresRunStore) initSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id          TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL,
			ended_at    TIMESTAMPTZ,
			snapshot    BYTEA NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_runs_status ON workflow_runs (status);
	`)
	if err != nil {
		return fmt.Errorf("init workflow_runs schema: %w", err)
	}
	return nil
}

func (p *PostgresRunStore) SaveRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := corep.EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, status, error, started_at, ended_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		run.ID,
		run.WorkflowID,
		string(run.Status),
		errMessage(run.Err),
		run.StartedAt,
		endedAt(run),
		data,
	)
	return err
}

func (p *PostgresRunStore) UpdateRun(ctx context.Context, run *api.WorkflowRun) error {
	data, err := corep.EncodeRun(run)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET workflow_id = $1,
		    status      = $2,
		    error       = $3,
		    ended_at    = $4,
		    snapshot    = $5
		WHERE id = $6
	`,
		run.WorkflowID,
		string(run.Status),
		errMessage(run.Err),
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
		return corep.ErrRunNotFound
	}
	return nil
}

func (p *PostgresRunStore) GetRun(ctx context.Context, id string) (*api.WorkflowRun, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT snapshot FROM workflow_runs WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, corep.ErrRunNotFound
		}
		return nil, err
	}
	return corep.DecodeRun(data)
}

func (p *PostgresRunStore) ListRuns(ctx context.Context, filter corep.RunFilter) ([]*api.WorkflowRun, error) {
	query := `SELECT snapshot FROM workflow_runs`
	var (
		args    []any
		clauses []string
	)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		clauses = append(clauses, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at"

	rows, err := p.db.QueryContext(ctx, query, args...)
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
		run, err := corep.DecodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func endedAt(run *api.WorkflowRun) any {
	if run.EndedAt.IsZero() {
		return nil
	}
	return run.EndedAt
}
