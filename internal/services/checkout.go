package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	redisclient "github.com/marlowe/storefront-backend/internal/clients/redis"
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

// ResolveStep derives the one checkout step the shopper is authorized to
// be on from cart completeness. Total, side-effect-free, no network; it is
// recomputed after every mutation, and a stale ?step= in the URL is
// rewound to whatever this returns.
func ResolveStep(cart *types.Cart, domesticCountry string) types.CheckoutStep {
	if !addressComplete(cart, domesticCountry) {
		return types.StepAddress
	}
	if cart.ShippingMethod() == nil {
		return types.StepDelivery
	}
	// A zero-total cart (fully covered by gift card or discount) skips
	// payment entirely.
	if cart.PendingPaymentSession() == nil && cart.Total != 0 {
		return types.StepPayment
	}
	return types.StepReview
}

func addressComplete(cart *types.Cart, domesticCountry string) bool {
	addr := cart.ShippingAddress
	if addr == nil {
		return false
	}
	required := []string{
		addr.FirstName,
		addr.LastName,
		addr.Address1,
		addr.City,
		addr.PostalCode,
		addr.CountryCode,
		addr.Phone,
	}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	// Domestic destinations additionally need a state/province.
	if strings.EqualFold(addr.CountryCode, domesticCountry) && strings.TrimSpace(addr.Province) == "" {
		return false
	}
	return true
}

// CheckoutService wraps step derivation with the configured domestic
// country and owns order completion.
type CheckoutService struct {
	log             *logger.Logger
	commerce        commerce.Client
	identity        *IdentityService
	cache           redisclient.Store
	domesticCountry string
}

func NewCheckoutService(log *logger.Logger, cc commerce.Client, identity *IdentityService, cache redisclient.Store) *CheckoutService {
	return &CheckoutService{
		log:             log.With("service", "CheckoutService"),
		commerce:        cc,
		identity:        identity,
		cache:           cache,
		domesticCountry: envutil.String("CHECKOUT_DOMESTIC_COUNTRY", "us"),
	}
}

func (s *CheckoutService) Step(cart *types.Cart) types.CheckoutStep {
	return ResolveStep(cart, s.domesticCountry)
}

// Authorize clamps a requested step to the resolved one: a shopper may
// view any step at or before it, never past it.
func (s *CheckoutService) Authorize(cart *types.Cart, requested types.CheckoutStep) types.CheckoutStep {
	resolved := s.Step(cart)
	if !requested.Valid() || resolved.Before(requested) {
		return resolved
	}
	return requested
}

// CompleteResult is what completion hands back to the handler: either an
// order, or the still-open cart with the step to reopen.
type CompleteResult struct {
	Order      *types.Order
	Cart       *types.Cart
	ReopenStep types.CheckoutStep
	Err        error
}

// Complete attempts order completion. The backend re-checks the loyalty
// balance here because it can have changed since application (another
// session may have redeemed the points); that rejection reopens the
// redemption review rather than reading as a payment failure.
func (s *CheckoutService) Complete(ctx context.Context, ch CookieChannel, cartID string) (*CompleteResult, error) {
	res, err := s.commerce.CompleteCart(ctx, cartID)
	if err != nil {
		if checkouterr.Is(err, checkouterr.CodeInsufficientBalance) {
			cart, ferr := s.commerce.GetCart(ctx, cartID)
			if ferr != nil {
				return nil, ferr
			}
			return &CompleteResult{Cart: cart, ReopenStep: types.StepReview, Err: err}, nil
		}
		return nil, err
	}

	if res.Order != nil {
		// The cart is gone; so is its identity.
		s.identity.Clear(ctx, ch)
		if derr := s.cache.InvalidateTag(ctx, tagCart(cartID)); derr != nil {
			s.log.Warn("cart tag invalidation failed after completion", "cart_id", cartID, "error", derr)
		}
		if derr := s.cache.InvalidateTag(ctx, tagRates(cartID)); derr != nil {
			s.log.Warn("rates tag invalidation failed after completion", "cart_id", cartID, "error", derr)
		}
		s.log.Info("order completed", "cart_id", cartID, "order_id", res.Order.ID)
		return &CompleteResult{Order: res.Order}, nil
	}

	// Completion refused but not via HTTP error: the backend returned the
	// still-open cart with its rejection attached.
	cart := res.Cart
	if cart == nil {
		refreshed, ferr := s.commerce.GetCart(ctx, cartID)
		if ferr != nil {
			return nil, ferr
		}
		cart = refreshed
	}
	rejection := fmt.Errorf("completion rejected")
	reopen := s.Step(cart)
	if res.Error != nil {
		rejection = fmt.Errorf("%s", res.Error.Message)
		if strings.EqualFold(res.Error.Code, "insufficient_balance") || strings.EqualFold(res.Error.Code, "insufficient_points") {
			reopen = types.StepReview
			return &CompleteResult{Cart: cart, ReopenStep: reopen,
				Err: checkouterr.New(409, checkouterr.CodeInsufficientBalance, rejection)}, nil
		}
	}
	return &CompleteResult{Cart: cart, ReopenStep: reopen, Err: checkouterr.Backend(rejection)}, nil
}
