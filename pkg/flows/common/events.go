package common

import "github.com/petrijr/sagaflow/pkg/api"

// Fulfillment workflow events.
const (
	EventShipmentCreated = "shipment.created"
	EventDeliveryCreated = "delivery.created"
)

// Order workflow events.
const (
	EventOrderPlaced   = "order.placed"
	EventOrderCanceled = "order.canceled"
)

// EmitEventStep returns a best-effort step named "emit-<eventName>" that
// publishes its input as the event data.
func EmitEventStep(eventName string, opts ...api.EmitOption) api.Step {
	return api.EmitEventStep("emit-"+eventName, eventName, opts...)
}
