package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sagaflow/pkg/api"
)

// nodeFailure describes why a definition stopped executing.
type nodeFailure struct {
	node  string
	cause error

	// compensation is set when a nested sub-workflow could not roll itself
	// back. The parent then skips its own rollback.
	compensation *api.CompensationError
}

// execution holds the per-run state shared by every node of a run,
// including nodes of nested sub-workflows.
type execution struct {
	engine *engineImpl
	run    *api.WorkflowRun
	ec     *api.ExecutionContext

	mu sync.Mutex // guards run.EventErrors
}

func (e *engineImpl) newExecution(run *api.WorkflowRun) *execution {
	return &execution{
		engine: e,
		run:    run,
		ec: &api.ExecutionContext{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Logger: e.logger.With(
				zap.String("workflow_id", run.WorkflowID),
				zap.String("run_id", run.ID),
			),
			Query:  e.query,
			Events: e.events,
		},
	}
}

// runDefinition executes def's nodes in declaration order against data,
// appending completed nodes to rec. afterNode, if non-nil, is called after
// every top-level node settled.
func (ex *execution) runDefinition(
	ctx context.Context,
	def *api.WorkflowDefinition,
	ec *api.ExecutionContext,
	rec *api.ExecutionRecord,
	data api.Data,
	afterNode func(),
) (any, *nodeFailure) {
	var last any

	for _, n := range def.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, &nodeFailure{
				node:  n.Name(),
				cause: &api.StepExecutionError{Step: n.Name(), Cause: err},
			}
		}

		out, fail := ex.runNode(ctx, n, ec, rec, data, "")
		if afterNode != nil {
			afterNode()
		}
		if fail != nil {
			return nil, fail
		}

		data[n.Name()] = out
		if p, ok := n.(*api.ParallelNode); ok {
			outs := out.([]any)
			for i, m := range p.Members {
				data[m.Name()] = outs[i]
			}
		}
		last = out
	}

	if def.Output.IsZero() {
		return last, nil
	}
	out, err := def.Output.Eval(data)
	if err != nil {
		return nil, &nodeFailure{
			node:  "output",
			cause: &api.TransformError{Transform: def.ID + ".output", Cause: err},
		}
	}
	return out, nil
}

// runNode executes a single node. data is only read.
func (ex *execution) runNode(
	ctx context.Context,
	n api.Node,
	ec *api.ExecutionContext,
	rec *api.ExecutionRecord,
	data api.Data,
	group string,
) (any, *nodeFailure) {
	switch node := n.(type) {
	case *api.StepNode:
		return ex.runStep(ctx, node, ec, rec, data, group)
	case *api.TransformNode:
		return ex.runTransform(ctx, node, rec, data, group)
	case *api.ParallelNode:
		return ex.runParallel(ctx, node, ec, rec, data)
	case *api.SubWorkflowNode:
		return ex.runSubWorkflow(ctx, node, ec, rec, data, group)
	default:
		return nil, &nodeFailure{
			node:  n.Name(),
			cause: fmt.Errorf("unsupported node type %T", n),
		}
	}
}

func (ex *execution) runStep(
	ctx context.Context,
	node *api.StepNode,
	ec *api.ExecutionContext,
	rec *api.ExecutionRecord,
	data api.Data,
	group string,
) (any, *nodeFailure) {
	name := node.Name()
	obs := ex.engine.observer

	entry := &api.RecordEntry{
		StepName:  name,
		Kind:      api.KindStep,
		Group:     group,
		StartedAt: time.Now().UTC(),
	}

	obs.OnStepStart(ctx, ex.run, name, api.KindStep)

	var (
		result   any
		attempts int
		err      error
	)
	input, err := node.Input.Eval(data)
	if err == nil {
		result, attempts, err = ex.invoke(ctx, node, ec, input)
	}

	entry.EndedAt = time.Now().UTC()
	entry.Attempts = attempts

	if err != nil {
		stepErr := &api.StepExecutionError{Step: name, Attempts: attempts, Cause: err}
		entry.Status = api.EntryFailed
		entry.Error = stepErr
		rec.Append(entry)
		obs.OnStepCompleted(ctx, ex.run, name, api.KindStep, stepErr, entry.EndedAt.Sub(entry.StartedAt))

		if node.Step.OnFailure == api.FailureContinue {
			ec.Logger.Warn("best-effort step failed",
				zap.String("step", name),
				zap.Error(err),
			)
			ex.addEventError(stepErr)
			return nil, nil
		}
		return nil, &nodeFailure{node: name, cause: stepErr}
	}

	output, compensateInput := api.SplitResult(result)
	entry.Status = api.EntrySucceeded
	entry.Result = output
	entry.CompensateInput = compensateInput
	entry.Compensate = node.Step.Compensate
	rec.Append(entry)

	obs.OnStepCompleted(ctx, ex.run, name, api.KindStep, nil, entry.EndedAt.Sub(entry.StartedAt))
	return output, nil
}

// invoke calls the step's invoke function, honoring its retry policy and
// per-attempt timeout. It returns the result and the number of attempts.
func (ex *execution) invoke(ctx context.Context, node *api.StepNode, ec *api.ExecutionContext, input any) (any, int, error) {
	policy := api.RetryPolicy{MaxAttempts: 1}
	if node.Retry != nil {
		policy = *node.Retry
	}
	maxAttempts := policy.Attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := invokeOnce(ctx, node, ec, input)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts || ctx.Err() != nil {
			return nil, attempt, lastErr
		}

		delay := policy.Delay(attempt)
		ec.Logger.Debug("retrying step",
			zap.String("step", node.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, lastErr
		case <-timer.C:
		}
	}
	return nil, maxAttempts, lastErr
}

type invokeResult struct {
	value any
	err   error
}

// invokeOnce runs a single attempt. With a timeout, the attempt is abandoned
// once the deadline passes even if the invoke function ignores its context.
func invokeOnce(ctx context.Context, node *api.StepNode, ec *api.ExecutionContext, input any) (any, error) {
	if node.Timeout <= 0 {
		return safeInvoke(ctx, node.Step.Invoke, ec, input)
	}

	ctx, cancel := context.WithTimeout(ctx, node.Timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		v, err := safeInvoke(ctx, node.Step.Invoke, ec, input)
		done <- invokeResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("step timed out after %s: %w", node.Timeout, ctx.Err())
	}
}

func safeInvoke(ctx context.Context, fn api.InvokeFunc, ec *api.ExecutionContext, input any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, ec, input)
}

func (ex *execution) runTransform(
	ctx context.Context,
	node *api.TransformNode,
	rec *api.ExecutionRecord,
	data api.Data,
	group string,
) (any, *nodeFailure) {
	name := node.Name()
	obs := ex.engine.observer

	entry := &api.RecordEntry{
		StepName:  name,
		Kind:      api.KindTransform,
		Group:     group,
		StartedAt: time.Now().UTC(),
		Attempts:  1,
	}
	obs.OnStepStart(ctx, ex.run, name, api.KindTransform)

	input, err := node.Input.Eval(data)
	var output any
	if err == nil {
		output, err = safeTransform(node.Fn, input)
	}
	entry.EndedAt = time.Now().UTC()

	if err != nil {
		tErr := &api.TransformError{Transform: name, Cause: err}
		entry.Status = api.EntryFailed
		entry.Error = tErr
		rec.Append(entry)
		obs.OnStepCompleted(ctx, ex.run, name, api.KindTransform, tErr, entry.EndedAt.Sub(entry.StartedAt))
		return nil, &nodeFailure{node: name, cause: tErr}
	}

	entry.Status = api.EntrySucceeded
	entry.Result = output
	rec.Append(entry)
	obs.OnStepCompleted(ctx, ex.run, name, api.KindTransform, nil, entry.EndedAt.Sub(entry.StartedAt))
	return output, nil
}

func safeTransform(fn api.TransformFunc, input any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(input)
}

// runParallel runs the members of a group concurrently and waits for all of
// them to settle. The first member failure observed is reported as the
// trigger. A failed rollback inside any member is carried along with it.
func (ex *execution) runParallel(
	ctx context.Context,
	node *api.ParallelNode,
	ec *api.ExecutionContext,
	rec *api.ExecutionRecord,
	data api.Data,
) (any, *nodeFailure) {
	policy := node.Policy
	if policy == api.ParallelWaitAll {
		policy = ex.engine.parallel
	}

	g := new(errgroup.Group)
	gctx := ctx
	if policy == api.ParallelCancelSiblings {
		g, gctx = errgroup.WithContext(ctx)
	}

	outputs := make([]any, len(node.Members))
	var (
		mu      sync.Mutex
		first   *nodeFailure
		compErr *api.CompensationError
	)

	for i, m := range node.Members {
		g.Go(func() error {
			out, fail := ex.runNode(gctx, m, ec, rec, data, node.Name())
			if fail != nil {
				mu.Lock()
				if first == nil {
					first = fail
				}
				if compErr == nil && fail.compensation != nil {
					compErr = fail.compensation
				}
				mu.Unlock()
				return fail.cause
			}
			outputs[i] = out
			return nil
		})
	}

	_ = g.Wait()

	if first != nil {
		return nil, &nodeFailure{node: first.node, cause: first.cause, compensation: compErr}
	}
	return outputs, nil
}

// runSubWorkflow runs a nested definition as a single node. A failing
// sub-workflow rolls itself back before the failure reaches the parent;
// a succeeded one is compensated as a unit through its child record.
func (ex *execution) runSubWorkflow(
	ctx context.Context,
	node *api.SubWorkflowNode,
	ec *api.ExecutionContext,
	rec *api.ExecutionRecord,
	data api.Data,
	group string,
) (any, *nodeFailure) {
	name := node.Name()
	obs := ex.engine.observer
	def := node.Workflow

	entry := &api.RecordEntry{
		StepName:  name,
		Kind:      api.KindSubWorkflow,
		Group:     group,
		StartedAt: time.Now().UTC(),
		Attempts:  1,
		Children:  api.NewExecutionRecord(ex.run.ID, def.ID),
	}
	obs.OnStepStart(ctx, ex.run, name, api.KindSubWorkflow)

	childEC := subContext(ec, def.ID)

	input, err := node.Input.Eval(data)
	if err != nil {
		stepErr := &api.StepExecutionError{Step: name, Cause: err}
		entry.Status = api.EntryFailed
		entry.Error = stepErr
		entry.EndedAt = time.Now().UTC()
		rec.Append(entry)
		obs.OnStepCompleted(ctx, ex.run, name, api.KindSubWorkflow, stepErr, entry.EndedAt.Sub(entry.StartedAt))
		return nil, &nodeFailure{node: name, cause: stepErr}
	}

	childData := api.Data{api.InputKey: input}
	output, fail := ex.runDefinition(ctx, def, childEC, entry.Children, childData, nil)

	if fail != nil {
		compErr := fail.compensation
		if compErr == nil {
			compErr = ex.compensate(context.WithoutCancel(ctx), childEC, entry.Children)
		}
		subErr := &api.WorkflowError{
			WorkflowID:   def.ID,
			RunID:        ex.run.ID,
			Step:         fail.node,
			Cause:        fail.cause,
			Compensated:  compErr == nil,
			Compensation: compErr,
		}

		entry.Status = api.EntryFailed
		entry.Error = subErr
		entry.EndedAt = time.Now().UTC()
		rec.Append(entry)
		obs.OnStepCompleted(ctx, ex.run, name, api.KindSubWorkflow, subErr, entry.EndedAt.Sub(entry.StartedAt))
		return nil, &nodeFailure{node: name, cause: subErr, compensation: compErr}
	}

	entry.Status = api.EntrySucceeded
	entry.Result = output
	entry.EndedAt = time.Now().UTC()
	rec.Append(entry)
	obs.OnStepCompleted(ctx, ex.run, name, api.KindSubWorkflow, nil, entry.EndedAt.Sub(entry.StartedAt))
	return output, nil
}

// subContext derives the ExecutionContext of a nested sub-workflow.
func subContext(ec *api.ExecutionContext, workflowID string) *api.ExecutionContext {
	child := *ec
	child.WorkflowID = workflowID
	child.Logger = ec.Logger.With(zap.String("sub_workflow", workflowID))
	return &child
}

func (ex *execution) addEventError(err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.run.EventErrors = append(ex.run.EventErrors, err)
}
