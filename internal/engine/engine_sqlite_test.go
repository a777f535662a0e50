package engine

import (
	"context"
	"database/sql"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/sagaflow/pkg/api"
)

type sqliteOrder struct {
	ID    string
	Total int
}

func init() {
	gob.Register(sqliteOrder{})
}

func newSQLiteEngine(t *testing.T) api.Engine {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	engine, err := NewSQLiteEngine(db)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	return engine
}

func TestSQLiteEngine_PersistsCompensatedRun(t *testing.T) {
	ctx := context.Background()
	j := &journal{}
	engine := newSQLiteEngine(t)

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "order",
		Nodes: []api.Node{
			&api.StepNode{
				Step: api.TypedStep("price", func(ctx context.Context, ec *api.ExecutionContext, in sqliteOrder) (sqliteOrder, error) {
					in.Total = 42
					return in, nil
				}).WithCompensation(func(context.Context, *api.ExecutionContext, any) error {
					j.add("compensate:price")
					return nil
				}),
				Input: api.Input(),
			},
			stepNode(failStep(j, "charge", errBoom)),
		},
	})

	run, runErr := engine.Run(ctx, "order", sqliteOrder{ID: "order_1"})
	require.Error(t, runErr)

	stored, err := engine.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, api.StatusCompensated, stored.Status)
	require.Equal(t, sqliteOrder{ID: "order_1"}, stored.Input)
	require.EqualError(t, stored.Err, runErr.Error())

	price, ok := stored.Record.Entry("price")
	require.True(t, ok)
	require.Equal(t, api.EntryCompensated, price.Status)
	require.Equal(t, sqliteOrder{ID: "order_1", Total: 42}, price.Result)

	charge, ok := stored.Record.Entry("charge")
	require.True(t, ok)
	require.Equal(t, api.EntryFailed, charge.Status)

	list, err := engine.ListRuns(ctx, api.RunListOptions{WorkflowID: "order", Status: api.StatusCompensated})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSQLiteEngine_PersistsParallelGroupOutput(t *testing.T) {
	ctx := context.Background()
	j := &journal{}
	engine := newSQLiteEngine(t)

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "fan-out",
		Nodes: []api.Node{
			&api.ParallelNode{
				Key:     "both",
				Members: []api.Node{stepNode(okStep(j, "a")), stepNode(okStep(j, "b"))},
			},
		},
	})

	run, err := engine.Run(ctx, "fan-out", nil)
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, run.Status)

	stored, err := engine.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, stored.Status)
	require.Equal(t, []any{"a-out", "b-out"}, stored.Output)

	recovered, err := engine.RecoverStuckRuns(ctx)
	require.NoError(t, err)
	require.Zero(t, recovered)
}

// unregisteredPayload is deliberately not registered with gob.
type unregisteredPayload struct{ N int }

func TestSQLiteEngine_PersistsStatusWhenPayloadCannotBeEncoded(t *testing.T) {
	ctx := context.Background()
	engine := newSQLiteEngine(t)

	mustRegister(t, engine, &api.WorkflowDefinition{
		ID: "opaque",
		Nodes: []api.Node{
			stepNode(api.Step{
				Name: "make",
				Invoke: func(context.Context, *api.ExecutionContext, any) (any, error) {
					return unregisteredPayload{N: 1}, nil
				},
			}),
		},
	})

	run, err := engine.Run(ctx, "opaque", nil)
	require.NoError(t, err)

	stored, err := engine.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, api.StatusSucceeded, stored.Status)
	require.Nil(t, stored.Output)

	entry, ok := stored.Record.Entry("make")
	require.True(t, ok)
	require.Equal(t, api.EntrySucceeded, entry.Status)
	require.Nil(t, entry.Result)

	recovered, err := engine.RecoverStuckRuns(ctx)
	require.NoError(t, err)
	require.Zero(t, recovered)
}
