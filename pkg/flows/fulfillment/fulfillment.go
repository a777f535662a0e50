// Package fulfillment contains the fulfillment steps and the
// mark-as-delivered workflow.
package fulfillment

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/flows/common"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

func init() {
	gob.Register(MarkFulfillmentAsDeliveredInput{})
}

// Step and workflow IDs.
const (
	MarkFulfillmentAsDeliveredWorkflowID    = "mark-fulfillment-as-delivered-workflow"
	FulfillmentQueryStepID                  = "fulfillment-query"
	ValidateFulfillmentDeliverabilityStepID = "validate-fulfillment-deliverability"
	UpdateFulfillmentStepID                 = "update-fulfillment"
)

var (
	// ErrFulfillmentCanceled is returned when delivering a canceled fulfillment.
	ErrFulfillmentCanceled = errors.New("cannot deliver a canceled fulfillment")

	// ErrFulfillmentDelivered is returned when the fulfillment was already delivered.
	ErrFulfillmentDelivered = errors.New("fulfillment has already been delivered")
)

// Service is the fulfillment module the steps write through.
type Service interface {
	UpdateFulfillment(ctx context.Context, data dto.UpdateFulfillmentDTO) (dto.FulfillmentDTO, error)
}

// MarkFulfillmentAsDeliveredInput is the input of the mark-as-delivered
// workflow.
type MarkFulfillmentAsDeliveredInput struct {
	ID string `json:"id"`
}

// ValidateFulfillmentDeliverabilityStep fails when the fulfillment is
// canceled or already delivered. It passes the fulfillment through.
func ValidateFulfillmentDeliverabilityStep() api.Step {
	return api.TypedStep(ValidateFulfillmentDeliverabilityStepID,
		func(ctx context.Context, ec *api.ExecutionContext, f dto.FulfillmentDTO) (dto.FulfillmentDTO, error) {
			if f.CanceledAt != nil {
				return f, fmt.Errorf("fulfillment %s: %w", f.ID, ErrFulfillmentCanceled)
			}
			if f.DeliveredAt != nil {
				return f, fmt.Errorf("fulfillment %s: %w", f.ID, ErrFulfillmentDelivered)
			}
			return f, nil
		})
}

// UpdateFulfillmentStep marks the input fulfillment as delivered now. Its
// compensation restores the previous delivery time.
func UpdateFulfillmentStep(svc Service) api.Step {
	step := api.TypedStep(UpdateFulfillmentStepID,
		func(ctx context.Context, ec *api.ExecutionContext, prev dto.FulfillmentDTO) (api.StepResponse, error) {
			now := time.Now().UTC()
			updated, err := svc.UpdateFulfillment(ctx, dto.UpdateFulfillmentDTO{ID: prev.ID, DeliveredAt: &now})
			if err != nil {
				return api.StepResponse{}, err
			}
			restore := dto.UpdateFulfillmentDTO{ID: prev.ID, DeliveredAt: prev.DeliveredAt}
			return api.NewStepResponseWithCompensation(updated, restore), nil
		})

	return step.WithCompensation(api.TypedCompensation(
		func(ctx context.Context, ec *api.ExecutionContext, restore dto.UpdateFulfillmentDTO) error {
			_, err := svc.UpdateFulfillment(ctx, restore)
			return err
		}))
}

// MarkFulfillmentAsDeliveredWorkflow builds the workflow that validates a
// fulfillment and sets its delivery time. Its output is the updated
// dto.FulfillmentDTO.
func MarkFulfillmentAsDeliveredWorkflow(svc Service) *api.WorkflowDefinition {
	return sagaflow.New(MarkFulfillmentAsDeliveredWorkflowID).
		Step(common.UseQueryStep[dto.FulfillmentDTO](FulfillmentQueryStepID, "fulfillment",
			[]string{"id", "delivered_at", "canceled_at"},
			common.QueryOptions{ThrowIfKeyNotFound: true}),
			sagaflow.WithInput(common.Vars("id", func(d api.Data) (any, error) {
				in, err := common.Decode[MarkFulfillmentAsDeliveredInput](d[api.InputKey])
				return in.ID, err
			}, api.InputKey))).
		Step(ValidateFulfillmentDeliverabilityStep(),
			sagaflow.WithInput(api.Ref(FulfillmentQueryStepID))).
		Step(UpdateFulfillmentStep(svc),
			sagaflow.WithInput(api.Ref(ValidateFulfillmentDeliverabilityStepID))).
		Returns(api.Ref(UpdateFulfillmentStepID)).
		MustBuild()
}
