package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/marlowe/storefront-backend/internal/types"
)

type CreateCartInput struct {
	RegionID string            `json:"region_id"`
	Email    string            `json:"email,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type UpdateCartInput struct {
	RegionID        string            `json:"region_id,omitempty"`
	Email           string            `json:"email,omitempty"`
	ShippingAddress *types.Address    `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address    `json:"billing_address,omitempty"`
	PromoCodes      []string          `json:"promo_codes,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CompleteResult mirrors the backend's completion response: either a
// finalized order, or the still-open cart together with the rejection.
type CompleteResult struct {
	Type  string        `json:"type"`
	Order *types.Order  `json:"order,omitempty"`
	Cart  *types.Cart   `json:"cart,omitempty"`
	Error *BackendError `json:"error,omitempty"`
}

type cartEnvelope struct {
	Cart *types.Cart `json:"cart"`
}

func (c *client) GetCart(ctx context.Context, cartID string) (*types.Cart, error) {
	var env cartEnvelope
	path := fmt.Sprintf("/store/carts/%s?fields=%s", url.PathEscape(cartID), url.QueryEscape(cartFields))
	if err := c.do(ctx, http.MethodGet, path, nil, &env, true); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *client) CreateCart(ctx context.Context, in CreateCartInput) (*types.Cart, error) {
	var env cartEnvelope
	if err := c.do(ctx, http.MethodPost, "/store/carts", in, &env, false); err != nil {
		return nil, err
	}
	c.log.Info("cart created", "cart_id", env.Cart.ID, "region_id", in.RegionID)
	return env.Cart, nil
}

func (c *client) UpdateCart(ctx context.Context, cartID string, in UpdateCartInput) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID)
	if err := c.do(ctx, http.MethodPost, path, in, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *client) ResetCart(ctx context.Context, cartID string) error {
	path := "/store/carts/" + url.PathEscape(cartID) + "/reset"
	return c.do(ctx, http.MethodPost, path, nil, nil, false)
}

func (c *client) CompleteCart(ctx context.Context, cartID string) (*CompleteResult, error) {
	var res CompleteResult
	path := "/store/carts/" + url.PathEscape(cartID) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, nil, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/line-items"
	body := map[string]any{"variant_id": variantID, "quantity": quantity}
	if err := c.do(ctx, http.MethodPost, path, body, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *client) UpdateLineItem(ctx context.Context, cartID, lineItemID string, quantity int) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/line-items/" + url.PathEscape(lineItemID)
	body := map[string]any{"quantity": quantity}
	if err := c.do(ctx, http.MethodPost, path, body, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *client) RemoveLineItem(ctx context.Context, cartID, lineItemID string) error {
	path := "/store/carts/" + url.PathEscape(cartID) + "/line-items/" + url.PathEscape(lineItemID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, false)
}

func (c *client) AttachCustomer(ctx context.Context, cartID string) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/customer"
	if err := c.do(ctx, http.MethodPost, path, nil, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

func (c *client) AttachAttribution(ctx context.Context, cartID, repCode string) error {
	path := "/store/carts/" + url.PathEscape(cartID) + "/attribution"
	body := map[string]any{"code": repCode}
	return c.do(ctx, http.MethodPost, path, body, nil, false)
}
