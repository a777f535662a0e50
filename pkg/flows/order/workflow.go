package order

import (
	"github.com/petrijr/sagaflow"
	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/flows/common"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
	"github.com/petrijr/sagaflow/pkg/flows/fulfillment"
)

// Workflow and node IDs of MarkOrderFulfillmentAsDeliveredWorkflow.
const (
	MarkOrderFulfillmentAsDeliveredWorkflowID = "mark-order-fulfillment-as-delivered-workflow"
	FulfillmentQueryStepID                    = "fulfillment"
	OrderQueryStepID                          = "order-query"
	DeliverGroupID                            = "deliver"
	MarkFulfillmentAsDeliveredID              = "mark-fulfillment-as-delivered"
)

// OrderDeliveryFields are the order fields the delivery workflow selects.
var OrderDeliveryFields = []string{
	"id",
	"status",
	"summary",
	"currency_code",
	"region_id",
	"fulfillments.id",
	"fulfillments.items.id",
	"fulfillments.items.quantity",
	"fulfillments.items.line_item_id",
	"fulfillments.items.inventory_item_id",
	"items.id",
	"items.quantity",
	"items.variant.manage_inventory",
	"items.variant.inventory_items.inventory.id",
	"items.variant.inventory_items.required_quantity",
}

// MarkOrderFulfillmentAsDeliveredInput is the input of
// MarkOrderFulfillmentAsDeliveredWorkflow.
type MarkOrderFulfillmentAsDeliveredInput struct {
	OrderID       string `json:"order_id"`
	FulfillmentID string `json:"fulfillment_id"`
}

// Deps are the services MarkOrderFulfillmentAsDeliveredWorkflow writes
// through.
type Deps struct {
	Orders       Service
	Fulfillments fulfillment.Service
}

// MarkOrderFulfillmentAsDeliveredWorkflow builds the workflow that marks a
// fulfillment of an order as delivered:
//
//	fulfillment -> order-query -> validation -> prepare delivery data
//	  -> deliver{mark-fulfillment-as-delivered, register-order-delivery}
//	  -> emit delivery.created
//
// Its output is the registered dto.RegisterOrderDeliveryDTO.
func MarkOrderFulfillmentAsDeliveredWorkflow(deps Deps) *api.WorkflowDefinition {
	return sagaflow.New(MarkOrderFulfillmentAsDeliveredWorkflowID).
		Step(common.UseQueryStep[dto.FulfillmentDTO](FulfillmentQueryStepID, "fulfillment",
			[]string{"id"}, common.QueryOptions{ThrowIfKeyNotFound: true}),
			sagaflow.WithInput(common.Vars("id", func(d api.Data) (any, error) {
				in, err := input(d)
				return in.FulfillmentID, err
			}, api.InputKey))).
		Step(common.UseQueryStep[dto.OrderDTO](OrderQueryStepID, "order",
			OrderDeliveryFields, common.QueryOptions{ThrowIfKeyNotFound: true}),
			sagaflow.WithInput(common.Vars("id", func(d api.Data) (any, error) {
				in, err := input(d)
				return in.OrderID, err
			}, api.InputKey))).
		Step(OrderFulfillmentDeliverabilityValidationStep(),
			sagaflow.WithInput(deliverabilityInput())).
		Transform(PrepareRegisterDeliveryDataID, api.TypedTransform(PrepareRegisterDeliveryData),
			sagaflow.WithInput(deliverabilityInput())).
		Parallel(DeliverGroupID,
			sagaflow.SubWorkflowMember(MarkFulfillmentAsDeliveredID,
				fulfillment.MarkFulfillmentAsDeliveredWorkflow(deps.Fulfillments),
				sagaflow.WithInput(api.Bind(func(d api.Data) (any, error) {
					f, err := common.Decode[dto.FulfillmentDTO](d[FulfillmentQueryStepID])
					return fulfillment.MarkFulfillmentAsDeliveredInput{ID: f.ID}, err
				}, FulfillmentQueryStepID))),
			sagaflow.StepMember(RegisterOrderDeliveryStep(deps.Orders),
				sagaflow.WithInput(api.Ref(PrepareRegisterDeliveryDataID))),
		).
		Step(common.EmitEventStep(common.EventDeliveryCreated),
			sagaflow.WithInput(api.Bind(func(d api.Data) (any, error) {
				f, err := common.Decode[dto.FulfillmentDTO](d[MarkFulfillmentAsDeliveredID])
				return map[string]any{"id": f.ID}, err
			}, MarkFulfillmentAsDeliveredID))).
		Returns(api.Ref(RegisterOrderDeliveryStepID)).
		MustBuild()
}

func input(d api.Data) (MarkOrderFulfillmentAsDeliveredInput, error) {
	return common.Decode[MarkOrderFulfillmentAsDeliveredInput](d[api.InputKey])
}

func deliverabilityInput() api.Binding {
	return api.Bind(func(d api.Data) (any, error) {
		o, err := common.Decode[dto.OrderDTO](d[OrderQueryStepID])
		if err != nil {
			return nil, err
		}
		f, err := common.Decode[dto.FulfillmentDTO](d[FulfillmentQueryStepID])
		return DeliverabilityInput{Order: o, Fulfillment: f}, err
	}, OrderQueryStepID, FulfillmentQueryStepID)
}
