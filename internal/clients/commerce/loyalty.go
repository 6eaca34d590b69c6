package commerce

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/marlowe/storefront-backend/internal/types"
)

var errEmptyRate = errors.New("calculation returned no amount")

type loyaltyEnvelope struct {
	Account *types.LoyaltyAccount `json:"account"`
}

func (c *client) LoyaltyAccount(ctx context.Context) (*types.LoyaltyAccount, error) {
	var env loyaltyEnvelope
	if err := c.do(ctx, http.MethodGet, "/store/customers/me/loyalty", nil, &env, true); err != nil {
		return nil, err
	}
	return env.Account, nil
}

// ApplyLoyalty asks the backend to attach the points-backed promotion and
// tag cart metadata in one operation. Ownership and balance are enforced
// authoritatively on the backend.
func (c *client) ApplyLoyalty(ctx context.Context, cartID string) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/loyalty"
	if err := c.do(ctx, http.MethodPost, path, nil, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}

// RemoveLoyalty clears the promotion and the metadata tag atomically from
// the caller's perspective.
func (c *client) RemoveLoyalty(ctx context.Context, cartID string) (*types.Cart, error) {
	var env cartEnvelope
	path := "/store/carts/" + url.PathEscape(cartID) + "/loyalty"
	if err := c.do(ctx, http.MethodDelete, path, nil, &env, false); err != nil {
		return nil, err
	}
	return env.Cart, nil
}
