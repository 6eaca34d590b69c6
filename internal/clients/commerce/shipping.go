package commerce

import (
	"context"
	"net/http"
	"net/url"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/types"
)

// CalculatedRate is the backend's answer to a rate-calculation call.
// Amount may be in major or minor units depending on the upstream carrier;
// the shipping service normalizes it.
type CalculatedRate struct {
	OptionID   string  `json:"shipping_option_id"`
	Amount     float64 `json:"amount"`
	AmountUnit string  `json:"amount_unit,omitempty"`
}

type shippingOptionsEnvelope struct {
	ShippingOptions []types.ShippingOption `json:"shipping_options"`
}

type calculatedRateEnvelope struct {
	ShippingOption *CalculatedRate `json:"shipping_option"`
}

func (c *client) ListShippingOptions(ctx context.Context, cartID string) ([]types.ShippingOption, error) {
	var env shippingOptionsEnvelope
	path := "/store/shipping-options?cart_id=" + url.QueryEscape(cartID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env, true); err != nil {
		return nil, err
	}
	return env.ShippingOptions, nil
}

func (c *client) CalculateShippingOption(ctx context.Context, cartID, optionID string) (*CalculatedRate, error) {
	var env calculatedRateEnvelope
	path := "/store/shipping-options/" + url.PathEscape(optionID) + "/calculate"
	body := map[string]any{"cart_id": cartID}
	// Rate calculation is read-like on the cart, safe to retry.
	if err := c.do(ctx, http.MethodPost, path, body, &env, true); err != nil {
		return nil, checkouterr.RateUnavailable(optionID, err)
	}
	if env.ShippingOption == nil {
		return nil, checkouterr.RateUnavailable(optionID, errEmptyRate)
	}
	return env.ShippingOption, nil
}

func (c *client) AddShippingMethod(ctx context.Context, cartID, optionID string, amount int64) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/shipping-methods"
	body := map[string]any{"option_id": optionID, "amount": amount}
	if err := c.do(ctx, http.MethodPost, path, body, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// ClearShippingMethods is idempotent: a cart with no method is a no-op on
// the backend side.
func (c *client) ClearShippingMethods(ctx context.Context, cartID string) error {
	path := "/store/carts/" + url.PathEscape(cartID) + "/shipping-methods"
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}
