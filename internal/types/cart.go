package types

// MetadataLoyaltyPromoID tags the cart with the id of the applied loyalty
// promotion. If present it must reference a promotion currently in
// Promotions; a mismatch means the redemption view is stale.
const MetadataLoyaltyPromoID = "loyalty_promo_id"

// MetadataSalesRepCode carries the sales-rep attribution captured from
// referral parameters at cart creation.
const MetadataSalesRepCode = "sales_rep_code"

// Cart is the backend-owned order draft. The storefront only ever holds a
// revalidated copy of it plus the identifier; every field here mirrors the
// backend's projection.
type Cart struct {
	ID                string            `json:"id"`
	RegionID          string            `json:"region_id"`
	CurrencyCode      string            `json:"currency_code"`
	Email             string            `json:"email,omitempty"`
	CustomerID        string            `json:"customer_id,omitempty"`
	ShippingAddress   *Address          `json:"shipping_address,omitempty"`
	BillingAddress    *Address          `json:"billing_address,omitempty"`
	Items             []LineItem        `json:"items"`
	ShippingMethods   []ShippingMethod  `json:"shipping_methods,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	Promotions        []Promotion       `json:"promotions,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`

	Subtotal      int64 `json:"subtotal"`
	ShippingTotal int64 `json:"shipping_total"`
	TaxTotal      int64 `json:"tax_total"`
	DiscountTotal int64 `json:"discount_total"`
	Total         int64 `json:"total"`
}

func (c *Cart) ShippingMethod() *ShippingMethod {
	if c == nil || len(c.ShippingMethods) == 0 {
		return nil
	}
	return &c.ShippingMethods[0]
}

func (c *Cart) PendingPaymentSession() *PaymentSession {
	if c == nil || c.PaymentCollection == nil {
		return nil
	}
	for i := range c.PaymentCollection.PaymentSessions {
		if c.PaymentCollection.PaymentSessions[i].Status == PaymentSessionPending {
			return &c.PaymentCollection.PaymentSessions[i]
		}
	}
	return nil
}

func (c *Cart) HasPromotion(promoID string) bool {
	if c == nil || promoID == "" {
		return false
	}
	for _, p := range c.Promotions {
		if p.ID == promoID {
			return true
		}
	}
	return false
}

func (c *Cart) LoyaltyPromoID() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetadataLoyaltyPromoID]
}

type LineItem struct {
	ID        string `json:"id"`
	VariantID string `json:"variant_id"`
	Title     string `json:"title,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Address1   string `json:"address_1"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code"`
	// CountryCode is lowercase ISO 3166-1 alpha-2.
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
	Company     string `json:"company,omitempty"`
}

type Promotion struct {
	ID          string `json:"id"`
	Code        string `json:"code,omitempty"`
	IsAutomatic bool   `json:"is_automatic,omitempty"`
	ValueType   string `json:"value_type,omitempty"`
	Value       int64  `json:"value,omitempty"`
}

type PaymentCollection struct {
	ID              string           `json:"id"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
}

const PaymentSessionPending = "pending"

type PaymentSession struct {
	ID         string                 `json:"id"`
	ProviderID string                 `json:"provider_id"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Order is returned by a successful cart completion.
type Order struct {
	ID           string     `json:"id"`
	DisplayID    int        `json:"display_id,omitempty"`
	Email        string     `json:"email,omitempty"`
	CurrencyCode string     `json:"currency_code"`
	Items        []LineItem `json:"items"`
	Total        int64      `json:"total"`
}

// LoyaltyAccount is the authenticated customer's points view.
type LoyaltyAccount struct {
	CustomerID string         `json:"customer_id"`
	Balance    int64          `json:"balance"`
	History    []LoyaltyEntry `json:"history,omitempty"`
}

type LoyaltyEntry struct {
	ID     string `json:"id"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}
