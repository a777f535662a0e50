package persistence

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/persistence/persistencetest"
	"github.com/petrijr/sagaflow/internal/testutil"
)

func newTestPostgresStore(t *testing.T, db *sql.DB) *PostgresRunStore {
	t.Helper()
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS workflow_runs`)
	require.NoError(t, err)

	store, err := NewPostgresRunStore(ctx, db)
	require.NoError(t, err)
	return store
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", testutil.PostgresDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresRunStoreSuite(t *testing.T) {
	db := openTestDB(t)
	suite.Run(t, &persistencetest.RunStoreSuite{
		NewStore: func() persistence.RunStore { return newTestPostgresStore(t, db) },
	})
}

func TestPostgresRunStoreSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := NewPostgresRunStore(ctx, db)
	require.NoError(t, err)
	_, err = NewPostgresRunStore(ctx, db)
	require.NoError(t, err)
}
