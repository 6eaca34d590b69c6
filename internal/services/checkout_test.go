package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	"github.com/marlowe/storefront-backend/internal/types"
)

func completeAddress() *types.Address {
	return &types.Address{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Address1:    "12 Main St",
		City:        "Portland",
		Province:    "or",
		PostalCode:  "97201",
		CountryCode: "us",
		Phone:       "5035551234",
	}
}

func TestResolveStep(t *testing.T) {
	withMethod := []types.ShippingMethod{{ID: "sm_1", ShippingOptionID: "so_flat", Amount: 500}}
	pendingPayment := &types.PaymentCollection{PaymentSessions: []types.PaymentSession{
		{ID: "ps_1", ProviderID: "pp_stripe", Status: types.PaymentSessionPending},
	}}

	intl := completeAddress()
	intl.CountryCode = "de"
	intl.Province = ""

	noProvince := completeAddress()
	noProvince.Province = ""

	cases := []struct {
		name string
		cart *types.Cart
		want types.CheckoutStep
	}{
		{
			name: "empty_cart_starts_at_address",
			cart: &types.Cart{Total: 2500},
			want: types.StepAddress,
		},
		{
			name: "partial_address",
			cart: &types.Cart{ShippingAddress: &types.Address{FirstName: "Ada", City: "Portland"}, Total: 2500},
			want: types.StepAddress,
		},
		{
			name: "domestic_address_without_province",
			cart: &types.Cart{ShippingAddress: noProvince, Total: 2500},
			want: types.StepAddress,
		},
		{
			name: "international_address_without_province",
			cart: &types.Cart{ShippingAddress: intl, Total: 2500},
			want: types.StepDelivery,
		},
		{
			name: "complete_address_no_method",
			cart: &types.Cart{ShippingAddress: completeAddress(), Total: 2500},
			want: types.StepDelivery,
		},
		{
			name: "method_set_no_payment",
			cart: &types.Cart{ShippingAddress: completeAddress(), ShippingMethods: withMethod, Total: 3000},
			want: types.StepPayment,
		},
		{
			name: "pending_session_reaches_review",
			cart: &types.Cart{
				ShippingAddress:   completeAddress(),
				ShippingMethods:   withMethod,
				PaymentCollection: pendingPayment,
				Total:             3000,
			},
			want: types.StepReview,
		},
		{
			name: "zero_total_skips_payment",
			cart: &types.Cart{ShippingAddress: completeAddress(), ShippingMethods: withMethod, Total: 0},
			want: types.StepReview,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStep(tc.cart, "us")
			if got != tc.want {
				t.Fatalf("ResolveStep()=%s, want %s", got, tc.want)
			}
			// Deriving again from the same cart never moves the step.
			assert.Equal(t, got, ResolveStep(tc.cart, "us"))
		})
	}
}

func newCheckoutFixture(t *testing.T) (*CheckoutService, *CartService, *fakeCommerce, *fakeStore, *fakeCookies) {
	t.Setenv("DEFAULT_REGION_ID", "reg_us")
	backend := newFakeCommerce()
	store := newFakeStore()
	log := testLogger(t)
	identity := NewIdentityService(log, store)
	carts := NewCartService(log, backend, identity, store)
	checkout := NewCheckoutService(log, backend, identity, store)
	return checkout, carts, backend, store, &fakeCookies{deviceID: "dev_1"}
}

func TestAuthorizeClampsForwardJumps(t *testing.T) {
	checkout, _, _, _, _ := newCheckoutFixture(t)

	cart := &types.Cart{ShippingAddress: completeAddress(), Total: 2500}
	require.Equal(t, types.StepDelivery, checkout.Step(cart))

	assert.Equal(t, types.StepAddress, checkout.Authorize(cart, types.StepAddress))
	assert.Equal(t, types.StepDelivery, checkout.Authorize(cart, types.StepDelivery))
	assert.Equal(t, types.StepDelivery, checkout.Authorize(cart, types.StepPayment), "cannot view a step past the resolved one")
	assert.Equal(t, types.StepDelivery, checkout.Authorize(cart, types.StepReview))
	assert.Equal(t, types.StepDelivery, checkout.Authorize(cart, "bogus"))
}

func TestCompleteClearsIdentityAndCache(t *testing.T) {
	checkout, carts, _, store, ch := newCheckoutFixture(t)
	ctx := context.Background()

	cart, err := carts.AddItem(ctx, ch, "variant_1", 1, "")
	require.NoError(t, err)

	// Park a cached rate under the cart's tag; completion must drop it.
	key := rateKey(cart, "so_calc")
	require.NoError(t, store.Set(ctx, key, "910", 0))
	require.NoError(t, store.Tag(ctx, tagRates(cart.ID), key))

	res, err := checkout.Complete(ctx, ch, cart.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "order_1", res.Order.ID)

	_, hasCookie := ch.CartCookie()
	assert.False(t, hasCookie, "identity must not survive completion")
	current, err := carts.Current(ctx, ch)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, found, _ := store.Get(ctx, key)
	assert.False(t, found, "rate cache must not survive completion")
}

func TestCompleteBalanceRecheckReopensReview(t *testing.T) {
	checkout, carts, backend, _, ch := newCheckoutFixture(t)
	ctx := context.Background()

	cart, err := carts.AddItem(ctx, ch, "variant_1", 1, "")
	require.NoError(t, err)

	// The balance changed between apply and complete; the backend rejects
	// with an HTTP-level error.
	backend.completeErr = checkouterr.New(409, checkouterr.CodeInsufficientBalance,
		fmt.Errorf("loyalty balance no longer covers the redemption"))

	res, err := checkout.Complete(ctx, ch, cart.ID)
	require.NoError(t, err)
	require.Nil(t, res.Order)
	require.NotNil(t, res.Cart)
	assert.Equal(t, cart.ID, res.Cart.ID, "the cart survives a refused completion")
	assert.Equal(t, types.StepReview, res.ReopenStep)
	assert.True(t, checkouterr.Is(res.Err, checkouterr.CodeInsufficientBalance))

	_, hasCookie := ch.CartCookie()
	assert.True(t, hasCookie, "identity is kept while the cart is still open")
}

func TestCompleteInBodyRejection(t *testing.T) {
	checkout, carts, backend, _, ch := newCheckoutFixture(t)
	ctx := context.Background()

	cart, err := carts.AddItem(ctx, ch, "variant_1", 1, "")
	require.NoError(t, err)

	backend.completeRes = &commerce.CompleteResult{
		Type: "cart",
		Cart: backend.carts[cart.ID],
		Error: &commerce.BackendError{
			Code:    "insufficient_points",
			Message: "points were spent elsewhere",
		},
	}

	res, err := checkout.Complete(ctx, ch, cart.ID)
	require.NoError(t, err)
	require.Nil(t, res.Order)
	assert.Equal(t, types.StepReview, res.ReopenStep)
	assert.True(t, checkouterr.Is(res.Err, checkouterr.CodeInsufficientBalance))
}

func TestCompleteGenericRejectionResolvesStep(t *testing.T) {
	checkout, carts, backend, _, ch := newCheckoutFixture(t)
	ctx := context.Background()

	cart, err := carts.AddItem(ctx, ch, "variant_1", 1, "")
	require.NoError(t, err)
	backend.carts[cart.ID].ShippingAddress = completeAddress()

	backend.completeRes = &commerce.CompleteResult{
		Type: "cart",
		Cart: backend.carts[cart.ID],
		Error: &commerce.BackendError{
			Code:    "payment_declined",
			Message: "card declined",
		},
	}

	res, err := checkout.Complete(ctx, ch, cart.ID)
	require.NoError(t, err)
	require.Nil(t, res.Order)
	assert.Equal(t, types.StepDelivery, res.ReopenStep, "rejection reopens wherever the cart actually is")
	assert.True(t, checkouterr.Is(res.Err, checkouterr.CodeBackend))
}
