// Package order contains the order steps and the workflow marking an order
// fulfillment as delivered.
package order

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/petrijr/sagaflow/pkg/api"
	"github.com/petrijr/sagaflow/pkg/flows/dto"
)

func init() {
	gob.Register(MarkOrderFulfillmentAsDeliveredInput{})
}

// Step IDs.
const (
	OrderFulfillmentDeliverabilityValidationStepID = "order-fulfillment-deliverability-validation"
	PrepareRegisterDeliveryDataID                  = "prepare-register-delivery-data"
	RegisterOrderDeliveryStepID                    = "register-order-delivery"
)

// ReferenceFulfillment is the reference of deliveries registered for a
// fulfillment.
const ReferenceFulfillment = "fulfillment"

var (
	// ErrOrderCanceled is returned when acting on a canceled order.
	ErrOrderCanceled = errors.New("order has been canceled")

	// ErrFulfillmentNotInOrder is returned when a fulfillment does not belong
	// to the order.
	ErrFulfillmentNotInOrder = errors.New("fulfillment not found in the order")

	// ErrItemsNotInOrder is returned when items reference unknown line items.
	ErrItemsNotInOrder = errors.New("items do not exist in the order")
)

// Service is the order module the steps write through.
type Service interface {
	// RegisterDelivery records delivered quantities and creates a new order
	// version.
	RegisterDelivery(ctx context.Context, data dto.RegisterOrderDeliveryDTO) error

	// RevertLastVersion discards the latest order version.
	RevertLastVersion(ctx context.Context, orderID string) error
}

// DeliverabilityInput pairs an order with the fulfillment to deliver.
type DeliverabilityInput struct {
	Order       dto.OrderDTO
	Fulfillment dto.FulfillmentDTO
}

// OrderFulfillmentDeliverabilityValidationStep fails when the order is
// canceled, the fulfillment is not one of the order's, or a fulfilled item
// points at a line item the order does not have.
func OrderFulfillmentDeliverabilityValidationStep() api.Step {
	return api.TypedStep(OrderFulfillmentDeliverabilityValidationStepID,
		func(ctx context.Context, ec *api.ExecutionContext, in DeliverabilityInput) (any, error) {
			if err := ThrowIfOrderIsCanceled(in.Order); err != nil {
				return nil, err
			}
			f, ok := findFulfillment(in.Order, in.Fulfillment.ID)
			if !ok {
				return nil, fmt.Errorf("fulfillment with id %s: %w", in.Fulfillment.ID, ErrFulfillmentNotInOrder)
			}
			ids := make([]string, 0, len(f.Items))
			for _, item := range f.Items {
				ids = append(ids, item.LineItemID)
			}
			return nil, ThrowIfItemsDoNotExistInOrder(in.Order, ids)
		})
}

// ThrowIfOrderIsCanceled returns ErrOrderCanceled for a canceled order.
func ThrowIfOrderIsCanceled(o dto.OrderDTO) error {
	if o.Status == dto.OrderStatusCanceled {
		return fmt.Errorf("order with id %s: %w", o.ID, ErrOrderCanceled)
	}
	return nil
}

// ThrowIfItemsDoNotExistInOrder returns ErrItemsNotInOrder listing every
// line item ID the order does not contain.
func ThrowIfItemsDoNotExistInOrder(o dto.OrderDTO, lineItemIDs []string) error {
	known := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		known[item.ID] = struct{}{}
	}
	var missing []string
	for _, id := range lineItemIDs {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("items with ids %s in order with id %s: %w",
		strings.Join(missing, ","), o.ID, ErrItemsNotInOrder)
}

// PrepareRegisterDeliveryData builds the delivery of a fulfillment. Each
// distinct line item of the fulfillment yields one delivery item. For
// variants backed by inventory items the fulfilled quantity is divided by
// the required quantity of the matching inventory item, since kits are
// fulfilled per inventory item.
func PrepareRegisterDeliveryData(in DeliverabilityInput) (dto.RegisterOrderDeliveryDTO, error) {
	f, ok := findFulfillment(in.Order, in.Fulfillment.ID)
	if !ok {
		return dto.RegisterOrderDeliveryDTO{}, fmt.Errorf("fulfillment %s: %w", in.Fulfillment.ID, ErrFulfillmentNotInOrder)
	}

	out := dto.RegisterOrderDeliveryDTO{
		OrderID:     in.Order.ID,
		Reference:   ReferenceFulfillment,
		ReferenceID: f.ID,
		Items:       []dto.OrderDeliveryItemDTO{},
	}

	seen := make(map[string]bool)
	for _, fitem := range f.Items {
		if seen[fitem.LineItemID] {
			continue
		}
		seen[fitem.LineItemID] = true

		quantity := fitem.Quantity
		lineItem, ok := findLineItem(in.Order, fitem.LineItemID)
		if !ok {
			return dto.RegisterOrderDeliveryDTO{}, fmt.Errorf("line item %s: %w", fitem.LineItemID, ErrItemsNotInOrder)
		}
		if lineItem.Variant != nil && len(lineItem.Variant.InventoryItems) > 0 {
			link, ok := findInventoryLink(lineItem.Variant, fitem.InventoryItemID)
			if !ok {
				return dto.RegisterOrderDeliveryDTO{}, fmt.Errorf("inventory item %s not found for line item %s", fitem.InventoryItemID, lineItem.ID)
			}
			if link.RequiredQuantity.IsZero() {
				return dto.RegisterOrderDeliveryDTO{}, fmt.Errorf("inventory item %s has no required quantity", fitem.InventoryItemID)
			}
			quantity = quantity.Div(link.RequiredQuantity)
		}

		out.Items = append(out.Items, dto.OrderDeliveryItemDTO{ID: fitem.LineItemID, Quantity: quantity})
	}
	return out, nil
}

// RegisterOrderDeliveryStep registers the input delivery. Its compensation
// reverts the order version the delivery created.
func RegisterOrderDeliveryStep(svc Service) api.Step {
	step := api.TypedStep(RegisterOrderDeliveryStepID,
		func(ctx context.Context, ec *api.ExecutionContext, data dto.RegisterOrderDeliveryDTO) (api.StepResponse, error) {
			if err := svc.RegisterDelivery(ctx, data); err != nil {
				return api.StepResponse{}, err
			}
			return api.NewStepResponseWithCompensation(data, data.OrderID), nil
		})

	return step.WithCompensation(api.TypedCompensation(
		func(ctx context.Context, ec *api.ExecutionContext, orderID string) error {
			if orderID == "" {
				return nil
			}
			return svc.RevertLastVersion(ctx, orderID)
		}))
}

func findFulfillment(o dto.OrderDTO, id string) (dto.FulfillmentDTO, bool) {
	for _, f := range o.Fulfillments {
		if f.ID == id {
			return f, true
		}
	}
	return dto.FulfillmentDTO{}, false
}

func findLineItem(o dto.OrderDTO, id string) (dto.OrderLineItemDTO, bool) {
	for _, item := range o.Items {
		if item.ID == id {
			return item, true
		}
	}
	return dto.OrderLineItemDTO{}, false
}

func findInventoryLink(v *dto.ProductVariantDTO, inventoryItemID string) (dto.VariantInventoryItemDTO, bool) {
	for _, link := range v.InventoryItems {
		if link.Inventory.ID == inventoryItemID {
			return link, true
		}
	}
	return dto.VariantInventoryItemDTO{}, false
}
