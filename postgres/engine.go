// Package postgres wires sagaflow to PostgreSQL through database/sql and
// the pgx driver.
package postgres

import (
	"context"
	"database/sql"

	"github.com/petrijr/sagaflow"

	pstore "github.com/petrijr/sagaflow/postgres/internal/persistence"
)

// NewPostgresStore creates the workflow_runs table if needed and returns a
// RunStore using it.
func NewPostgresStore(ctx context.Context, db *sql.DB) (sagaflow.RunStore, error) {
	return pstore.NewPostgresRunStore(ctx, db)
}

// NewPostgresEngine returns an Engine that persists runs in PostgreSQL.
func NewPostgresEngine(ctx context.Context, db *sql.DB) (sagaflow.Engine, error) {
	return NewPostgresEngineWithConfig(ctx, db, sagaflow.EngineConfig{})
}

// NewPostgresEngineWithConfig returns a Postgres-backed Engine. cfg.Store
// is replaced by the Postgres store.
func NewPostgresEngineWithConfig(ctx context.Context, db *sql.DB, cfg sagaflow.EngineConfig) (sagaflow.Engine, error) {
	store, err := pstore.NewPostgresRunStore(ctx, db)
	if err != nil {
		return nil, err
	}
	cfg.Store = store
	return sagaflow.NewEngine(cfg), nil
}
