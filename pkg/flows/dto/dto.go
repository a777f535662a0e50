// Package dto holds the data transfer objects exchanged by the sample
// commerce workflows. Field tags follow the snake_case shape returned by
// the query collaborator.
package dto

import (
	"encoding/gob"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	gob.Register(OrderDTO{})
	gob.Register(FulfillmentDTO{})
	gob.Register(UpdateFulfillmentDTO{})
	gob.Register(RegisterOrderDeliveryDTO{})
	gob.Register(PaymentDTO{})
	gob.Register(PaymentSessionDTO{})
	gob.Register(TaxRegionDTO{})
	gob.Register([]TaxRegionDTO{})
	gob.Register([]UpdateTaxRegionDTO{})
}

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
)

// OrderDTO is an order with the relations the delivery workflow selects.
type OrderDTO struct {
	ID           string             `json:"id"`
	Status       string             `json:"status,omitempty"`
	CurrencyCode string             `json:"currency_code,omitempty"`
	RegionID     string             `json:"region_id,omitempty"`
	Version      int                `json:"version,omitempty"`
	Items        []OrderLineItemDTO `json:"items,omitempty"`
	Fulfillments []FulfillmentDTO   `json:"fulfillments,omitempty"`
}

// OrderLineItemDTO is a line item of an order.
type OrderLineItemDTO struct {
	ID       string             `json:"id"`
	Quantity decimal.Decimal    `json:"quantity"`
	Variant  *ProductVariantDTO `json:"variant,omitempty"`
}

// ProductVariantDTO is the variant behind a line item.
type ProductVariantDTO struct {
	ID              string                    `json:"id,omitempty"`
	ManageInventory bool                      `json:"manage_inventory"`
	InventoryItems  []VariantInventoryItemDTO `json:"inventory_items,omitempty"`
}

// VariantInventoryItemDTO links a variant to an inventory item. A variant
// with several links, or a RequiredQuantity above one, is an inventory kit.
type VariantInventoryItemDTO struct {
	VariantID        string           `json:"variant_id,omitempty"`
	InventoryItemID  string           `json:"inventory_item_id,omitempty"`
	RequiredQuantity decimal.Decimal  `json:"required_quantity"`
	Inventory        InventoryItemDTO `json:"inventory"`
}

// InventoryItemDTO is a stock-keeping inventory item.
type InventoryItemDTO struct {
	ID string `json:"id"`
}

// FulfillmentDTO is a fulfillment of (part of) an order.
type FulfillmentDTO struct {
	ID          string               `json:"id"`
	DeliveredAt *time.Time           `json:"delivered_at,omitempty"`
	CanceledAt  *time.Time           `json:"canceled_at,omitempty"`
	Items       []FulfillmentItemDTO `json:"items,omitempty"`
}

// FulfillmentItemDTO is one fulfilled inventory item. Its LineItemID points
// back to the order line item it fulfils.
type FulfillmentItemDTO struct {
	ID              string          `json:"id"`
	Quantity        decimal.Decimal `json:"quantity"`
	LineItemID      string          `json:"line_item_id"`
	InventoryItemID string          `json:"inventory_item_id,omitempty"`
}

// UpdateFulfillmentDTO sets the delivery time of a fulfillment. A nil
// DeliveredAt clears it.
type UpdateFulfillmentDTO struct {
	ID          string     `json:"id"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// RegisterOrderDeliveryDTO records which line item quantities of an order
// were delivered by a fulfillment.
type RegisterOrderDeliveryDTO struct {
	OrderID     string                 `json:"order_id"`
	Reference   string                 `json:"reference"`
	ReferenceID string                 `json:"reference_id"`
	Items       []OrderDeliveryItemDTO `json:"items"`
}

// OrderDeliveryItemDTO is a delivered line item quantity.
type OrderDeliveryItemDTO struct {
	ID       string          `json:"id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Payment session statuses.
const (
	PaymentSessionStatusPending      = "pending"
	PaymentSessionStatusAuthorized   = "authorized"
	PaymentSessionStatusRequiresMore = "requires_more"
	PaymentSessionStatusError        = "error"
	PaymentSessionStatusCanceled     = "canceled"
)

// PaymentSessionDTO is a provider payment session.
type PaymentSessionDTO struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
	Payment *PaymentDTO     `json:"payment,omitempty"`
}

// PaymentDTO is a payment created by authorizing a session.
type PaymentDTO struct {
	ID             string             `json:"id"`
	Amount         decimal.Decimal    `json:"amount"`
	CanceledAt     *time.Time         `json:"canceled_at,omitempty"`
	PaymentSession *PaymentSessionDTO `json:"payment_session,omitempty"`
}

// TaxRegionDTO is a tax region.
type TaxRegionDTO struct {
	ID           string         `json:"id"`
	CountryCode  string         `json:"country_code"`
	ProvinceCode string         `json:"province_code,omitempty"`
	ProviderID   string         `json:"provider_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UpdateTaxRegionDTO updates a tax region. Nil fields are left unchanged.
type UpdateTaxRegionDTO struct {
	ID           string         `json:"id"`
	ProvinceCode *string        `json:"province_code,omitempty"`
	ProviderID   *string        `json:"provider_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
