package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/internal/testutil"
	"github.com/petrijr/sagaflow/pkg/worker"
	"github.com/petrijr/sagaflow/postgres"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", testutil.PostgresDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`DROP TABLE IF EXISTS workflow_runs, run_tasks`)
	require.NoError(t, err)
	return db
}

func TestPostgresEngineRunsAndPersists(t *testing.T) {
	ctx := context.Background()
	eng, err := postgres.NewPostgresEngine(ctx, openDB(t))
	require.NoError(t, err)

	sagaflow.New("pg-greet").
		Step(sagaflow.TypedStep("greet", func(ctx context.Context, ec *sagaflow.ExecutionContext, name string) (string, error) {
			return "hello " + name, nil
		}), sagaflow.WithInput(sagaflow.Input())).
		MustRegister(eng)

	run, err := sagaflow.RunWorkflow(ctx, eng, "pg-greet", "gopher")
	require.NoError(t, err)

	stored, err := sagaflow.GetRun(ctx, eng, run.ID)
	require.NoError(t, err)
	require.Equal(t, sagaflow.StatusSucceeded, stored.Status)
	require.Equal(t, "hello gopher", stored.Output)
	require.False(t, stored.EndedAt.IsZero())
}

func TestPostgresBundleProcessesQueuedRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bundle, err := postgres.NewPostgresBundle(ctx, openDB(t), worker.Config{MaxAttempts: 2})
	require.NoError(t, err)

	sagaflow.New("pg-add").
		Step(sagaflow.TypedStep("add", func(ctx context.Context, ec *sagaflow.ExecutionContext, n int) (int, error) {
			return n + 1, nil
		}), sagaflow.WithInput(sagaflow.Input())).
		MustRegister(bundle.Engine)

	require.NoError(t, bundle.Worker.EnqueueRun(ctx, "pg-add", 41))

	processed, err := bundle.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	runs, err := sagaflow.ListRuns(ctx, bundle.Engine, sagaflow.RunListOptions{WorkflowID: "pg-add"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 42, runs[0].Output)
}
