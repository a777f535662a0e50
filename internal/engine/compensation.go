package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/sagaflow/pkg/api"
)

// rollback moves a failed run through COMPENSATING to its terminal state and
// returns the *WorkflowError reported to the caller.
func (ex *execution) rollback(ctx context.Context, fail *nodeFailure) error {
	e := ex.engine
	run := ex.run

	// The rollback must complete even when the caller gave up.
	cctx := context.WithoutCancel(ctx)

	run.Status = api.StatusCompensating
	e.persist(cctx, run)

	ex.ec.Logger.Info("compensating run",
		zap.String("failed_step", fail.node),
		zap.Error(fail.cause),
	)

	compErr := fail.compensation
	if compErr == nil {
		compErr = ex.compensate(cctx, ex.ec, run.Record)
	}

	werr := &api.WorkflowError{
		WorkflowID:   run.WorkflowID,
		RunID:        run.ID,
		Step:         fail.node,
		Cause:        fail.cause,
		Compensated:  compErr == nil,
		Compensation: compErr,
	}

	if compErr != nil {
		run.Status = api.StatusCompensationFailed
	} else {
		run.Status = api.StatusCompensated
	}
	run.Err = werr
	run.EndedAt = time.Now().UTC()
	e.persist(cctx, run)

	e.observer.OnRunFailed(cctx, run, werr)
	return werr
}

// compensate walks rec in reverse completion order and compensates every
// succeeded entry exactly once. Sub-workflow entries compensate their child
// record as a unit. The walk stops at the first compensation failure.
func (ex *execution) compensate(ctx context.Context, ec *api.ExecutionContext, rec *api.ExecutionRecord) *api.CompensationError {
	entries := rec.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if !entry.Compensable() {
			continue
		}

		var compErr *api.CompensationError
		if entry.Children != nil {
			compErr = ex.compensate(ctx, subContext(ec, entry.Children.WorkflowID), entry.Children)
		} else if err := safeCompensate(ctx, entry.Compensate, ec, entry.CompensateInput); err != nil {
			compErr = &api.CompensationError{Step: entry.StepName, Cause: err}
		}

		if compErr != nil {
			rec.SetStatus(entry, api.EntryCompensationFailed, compErr)
			ex.engine.observer.OnCompensation(ctx, ex.run, entry.StepName, compErr)
			ex.persistRecord(ctx, rec)
			return compErr
		}

		rec.SetStatus(entry, api.EntryCompensated, nil)
		ex.engine.observer.OnCompensation(ctx, ex.run, entry.StepName, nil)
		ex.persistRecord(ctx, rec)
	}
	return nil
}

// persistRecord saves progress of the top-level walk. Nested walks may run
// inside parallel members and are saved with their parent.
func (ex *execution) persistRecord(ctx context.Context, rec *api.ExecutionRecord) {
	if rec == ex.run.Record {
		ex.engine.persist(ctx, ex.run)
	}
}

func safeCompensate(ctx context.Context, fn api.CompensateFunc, ec *api.ExecutionContext, data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ec, data)
}
