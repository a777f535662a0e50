// Package persistencetest provides a shared contract suite for RunStore
// implementations.
package persistencetest

import (
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/pkg/api"
)

// Payload is a sample struct stored as run input, output and step results.
type Payload struct {
	Msg string
	N   int
}

func init() {
	gob.Register(Payload{})
}

// RunStoreSuite exercises a RunStore. Set NewStore before running the suite;
// it is called once per test and should return an empty store.
type RunStoreSuite struct {
	suite.Suite

	NewStore func() persistence.RunStore

	store persistence.RunStore
	ctx   context.Context
}

func (s *RunStoreSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func sampleRun(id, workflowID string, status api.Status) *api.WorkflowRun {
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := api.NewExecutionRecord(id, workflowID)
	rec.Append(&api.RecordEntry{
		StepName:        "reserve",
		Kind:            api.KindStep,
		Status:          api.EntrySucceeded,
		Result:          Payload{Msg: "reserved", N: 1},
		CompensateInput: Payload{Msg: "reservation", N: 1},
		StartedAt:       started,
		EndedAt:         started.Add(time.Millisecond),
		Attempts:        1,
	})
	return &api.WorkflowRun{
		ID:         id,
		WorkflowID: workflowID,
		Status:     status,
		Input:      Payload{Msg: "hello", N: 42},
		Record:     rec,
		StartedAt:  started,
	}
}

func (s *RunStoreSuite) TestSaveGetUpdate() {
	run := sampleRun("run-1", "wf-test", api.StatusRunning)

	s.Require().NoError(s.store.SaveRun(s.ctx, run))

	got, err := s.store.GetRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Equal("run-1", got.ID)
	s.Equal("wf-test", got.WorkflowID)
	s.Equal(api.StatusRunning, got.Status)
	s.Equal(Payload{Msg: "hello", N: 42}, got.Input)
	s.Nil(got.Output)
	s.NoError(got.Err)

	entry, ok := got.Record.Entry("reserve")
	s.Require().True(ok, "record entry should survive the round trip")
	s.Equal(api.EntrySucceeded, entry.Status)
	s.Equal(Payload{Msg: "reserved", N: 1}, entry.Result)
	s.Equal(Payload{Msg: "reservation", N: 1}, entry.CompensateInput)
	s.Equal(1, entry.Attempts)

	run.Status = api.StatusCompensated
	run.Output = Payload{Msg: "done", N: 99}
	run.Err = errors.New("step \"charge\" failed: declined")
	run.EventErrors = []error{errors.New("bus down")}
	run.EndedAt = run.StartedAt.Add(time.Second)
	orig, _ := run.Record.Entry("reserve")
	run.Record.SetStatus(orig, api.EntryCompensated, nil)

	s.Require().NoError(s.store.UpdateRun(s.ctx, run))

	got, err = s.store.GetRun(s.ctx, "run-1")
	s.Require().NoError(err)
	s.Equal(api.StatusCompensated, got.Status)
	s.Equal(Payload{Msg: "done", N: 99}, got.Output)
	s.Require().Error(got.Err)
	s.Equal("step \"charge\" failed: declined", got.Err.Error())
	s.Require().Len(got.EventErrors, 1)
	s.Equal("bus down", got.EventErrors[0].Error())
	s.True(got.EndedAt.Equal(run.EndedAt))

	entry, ok = got.Record.Entry("reserve")
	s.Require().True(ok)
	s.Equal(api.EntryCompensated, entry.Status)
}

func (s *RunStoreSuite) TestSubWorkflowRecordRoundTrip() {
	run := sampleRun("run-children", "wf-parent", api.StatusSucceeded)

	child := api.NewExecutionRecord(run.ID, "wf-child")
	child.Append(&api.RecordEntry{
		StepName: "inner",
		Kind:     api.KindStep,
		Status:   api.EntrySucceeded,
		Result:   "inner-out",
	})
	run.Record.Append(&api.RecordEntry{
		StepName: "wf-child",
		Kind:     api.KindSubWorkflow,
		Status:   api.EntrySucceeded,
		Group:    "deliver",
		Children: child,
	})

	s.Require().NoError(s.store.SaveRun(s.ctx, run))

	got, err := s.store.GetRun(s.ctx, run.ID)
	s.Require().NoError(err)

	sub, ok := got.Record.Entry("wf-child")
	s.Require().True(ok)
	s.Equal(api.KindSubWorkflow, sub.Kind)
	s.Equal("deliver", sub.Group)
	s.Require().NotNil(sub.Children)

	inner, ok := sub.Children.Entry("inner")
	s.Require().True(ok)
	s.Equal("inner-out", inner.Result)
}

func (s *RunStoreSuite) TestGetMissingRun() {
	_, err := s.store.GetRun(s.ctx, "does-not-exist")
	s.ErrorIs(err, persistence.ErrRunNotFound)
}

func (s *RunStoreSuite) TestUpdateMissingRun() {
	err := s.store.UpdateRun(s.ctx, sampleRun("missing", "wf", api.StatusRunning))
	s.ErrorIs(err, persistence.ErrRunNotFound)
}

func (s *RunStoreSuite) TestListRunsFilters() {
	runs := []*api.WorkflowRun{
		sampleRun("list-1", "wf-A", api.StatusRunning),
		sampleRun("list-2", "wf-A", api.StatusSucceeded),
		sampleRun("list-3", "wf-B", api.StatusRunning),
	}
	for i, r := range runs {
		r.StartedAt = r.StartedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.SaveRun(s.ctx, r))
	}

	ids := func(filter persistence.RunFilter) []string {
		list, err := s.store.ListRuns(s.ctx, filter)
		s.Require().NoError(err)
		out := make([]string, 0, len(list))
		for _, r := range list {
			out = append(out, r.ID)
		}
		return out
	}

	s.ElementsMatch([]string{"list-1", "list-2", "list-3"}, ids(persistence.RunFilter{}))
	s.ElementsMatch([]string{"list-1", "list-2"}, ids(persistence.RunFilter{WorkflowID: "wf-A"}))
	s.ElementsMatch([]string{"list-1", "list-3"}, ids(persistence.RunFilter{Status: api.StatusRunning}))
	s.ElementsMatch([]string{"list-3"}, ids(persistence.RunFilter{WorkflowID: "wf-B", Status: api.StatusRunning}))
	s.Empty(ids(persistence.RunFilter{WorkflowID: "wf-C"}))
}

func (s *RunStoreSuite) TestListRunsReflectsStatusChange() {
	run := sampleRun("moving", "wf-A", api.StatusRunning)
	s.Require().NoError(s.store.SaveRun(s.ctx, run))

	run.Status = api.StatusCompensationFailed
	s.Require().NoError(s.store.UpdateRun(s.ctx, run))

	running, err := s.store.ListRuns(s.ctx, persistence.RunFilter{Status: api.StatusRunning})
	s.Require().NoError(err)
	s.Empty(running)

	failed, err := s.store.ListRuns(s.ctx, persistence.RunFilter{Status: api.StatusCompensationFailed})
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("moving", failed[0].ID)
}
