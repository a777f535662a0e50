package api

import (
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/google/uuid"
)

func init() {
	// Emit steps record the published message as their result.
	gob.Register(EventMessage{})
}

// EmitOption configures EmitEventStep.
type EmitOption func(*emitConfig)

type emitConfig struct {
	policy   FailurePolicy
	metadata map[string]string
}

// WithEmitPolicy overrides the default FailureContinue policy of an emit step.
func WithEmitPolicy(p FailurePolicy) EmitOption {
	return func(c *emitConfig) { c.policy = p }
}

// WithEmitMetadata attaches static metadata to every emitted message.
func WithEmitMetadata(md map[string]string) EmitOption {
	return func(c *emitConfig) { c.metadata = md }
}

// EmitEventStep returns a step whose success criterion is "message handed to
// ExecutionContext.Events". The step input becomes the message data.
//
// By default the step is best-effort: if publishing fails the failure is
// recorded and reported on the run, but committed work is not unwound.
// Place it last, after all compensable work.
func EmitEventStep(name, eventName string, opts ...EmitOption) Step {
	cfg := emitConfig{policy: FailureContinue}
	for _, o := range opts {
		o(&cfg)
	}

	return Step{
		Name:      name,
		OnFailure: cfg.policy,
		Invoke: func(ctx context.Context, ec *ExecutionContext, input any) (any, error) {
			if ec == nil || ec.Events == nil {
				return nil, errors.New("no event sink configured")
			}

			md := map[string]string{
				"workflow_id": ec.WorkflowID,
				"run_id":      ec.RunID,
			}
			for k, v := range cfg.metadata {
				md[k] = v
			}

			msg := EventMessage{
				ID:       uuid.NewString(),
				Name:     eventName,
				Data:     input,
				Metadata: md,
				At:       time.Now().UTC(),
			}
			if err := ec.Events.Publish(ctx, msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
	}
}
