package types

type PriceType string

const (
	// PriceTypeFlat options carry their amount directly.
	PriceTypeFlat PriceType = "flat"
	// PriceTypeCalculated options need a backend rate-calculation call
	// keyed by option and cart.
	PriceTypeCalculated PriceType = "calculated"
)

type FulfillmentType string

const (
	FulfillmentShipment FulfillmentType = "shipment"
	FulfillmentPickup   FulfillmentType = "pickup"
)

// ShippingOption is a fulfillment service the backend offers for a cart.
// Read-only; supplied per cart and address.
type ShippingOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceType  PriceType       `json:"price_type"`
	Amount     float64         `json:"amount"`
	// AmountUnit is "minor" or "major" when the backend states it; empty
	// means the magnitude heuristic applies.
	AmountUnit            string          `json:"amount_unit,omitempty"`
	ProviderID            string          `json:"provider_id"`
	ServiceCode           string          `json:"service_code,omitempty"`
	Type                  FulfillmentType `json:"type"`
	InsufficientInventory bool            `json:"insufficient_inventory"`
}

// ShippingMethod is the single selection applied to a cart. The amount is
// resolved at selection time; any item or address change clears the method
// before a new one is set.
type ShippingMethod struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Name             string `json:"name,omitempty"`
	Amount           int64  `json:"amount"`
}
