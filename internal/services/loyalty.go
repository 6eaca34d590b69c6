package services

import (
	"context"
	"fmt"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	"github.com/marlowe/storefront-backend/internal/platform/ctxutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

// LoyaltyService toggles the points-backed discount on a cart. Applied
// state is always derived from the cart itself (metadata tag present and
// referencing a live promotion), never from local toggle history, which is
// what makes apply and remove idempotent from the UI's perspective.
type LoyaltyService struct {
	log      *logger.Logger
	commerce commerce.Client
	cart     *CartService
}

func NewLoyaltyService(log *logger.Logger, cc commerce.Client, cart *CartService) *LoyaltyService {
	return &LoyaltyService{
		log:      log.With("service", "LoyaltyService"),
		commerce: cc,
		cart:     cart,
	}
}

// Applied reports whether the loyalty discount is on the cart: the
// metadata tag exists and references a promotion currently present.
func (s *LoyaltyService) Applied(cart *types.Cart) bool {
	promoID := cart.LoyaltyPromoID()
	return promoID != "" && cart.HasPromotion(promoID)
}

// Stale reports a tag/promotion mismatch in either direction; the
// redemption view must be refreshed before acting on it.
func (s *LoyaltyService) Stale(cart *types.Cart) bool {
	promoID := cart.LoyaltyPromoID()
	return promoID != "" && !cart.HasPromotion(promoID)
}

func (s *LoyaltyService) Account(ctx context.Context) (*types.LoyaltyAccount, error) {
	if ctxutil.CustomerID(ctx) == "" {
		return nil, checkouterr.Ownership(fmt.Errorf("sign in to view loyalty points"))
	}
	return s.commerce.LoyaltyAccount(ctx)
}

// Apply attaches the loyalty promotion. Gated locally on authentication
// and a strictly positive balance; ownership of the cart is enforced
// authoritatively by the backend and surfaced as a distinct failure.
func (s *LoyaltyService) Apply(ctx context.Context, ch CookieChannel, cart *types.Cart) (*types.Cart, error) {
	if ctxutil.CustomerID(ctx) == "" {
		return nil, checkouterr.Ownership(fmt.Errorf("sign in to redeem loyalty points"))
	}
	if s.Applied(cart) {
		// Safe no-op; the UI derives state from the cart.
		return cart, nil
	}
	if s.Stale(cart) {
		// The caller's view may have raced a concurrent apply. Revalidate
		// against the canonical cart before issuing another one.
		refreshed, err := s.cart.Refresh(ctx, cart.ID)
		if err != nil {
			return nil, err
		}
		if s.Applied(refreshed) {
			return refreshed, nil
		}
	}
	account, err := s.commerce.LoyaltyAccount(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil || account.Balance <= 0 {
		return nil, checkouterr.New(409, checkouterr.CodeInsufficientBalance,
			fmt.Errorf("no loyalty points available to redeem"))
	}
	return s.toggle(ctx, ch, "apply_loyalty", func(ctx context.Context, cartID string) error {
		_, err := s.commerce.ApplyLoyalty(ctx, cartID)
		return err
	})
}

// Remove clears the promotion and the metadata tag as one operation. The
// refetched cart is checked in both directions, a surviving tag or a
// surviving promotion, so a partial state is never observable after a
// successful remove.
func (s *LoyaltyService) Remove(ctx context.Context, ch CookieChannel, cart *types.Cart) (*types.Cart, error) {
	if !s.Applied(cart) && !s.Stale(cart) {
		return cart, nil
	}
	promoID := cart.LoyaltyPromoID()
	updated, err := s.toggle(ctx, ch, "remove_loyalty", func(ctx context.Context, cartID string) error {
		_, err := s.commerce.RemoveLoyalty(ctx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if updated.LoyaltyPromoID() != "" || updated.HasPromotion(promoID) {
		return nil, checkouterr.Backend(fmt.Errorf("loyalty removal left the cart inconsistent"))
	}
	return updated, nil
}

// toggle runs through the mutation coordinator so the loyalty write gets
// the same serialization, canonical refetch and cache invalidation as any
// other cart action.
func (s *LoyaltyService) toggle(ctx context.Context, ch CookieChannel, name string, apply func(ctx context.Context, cartID string) error) (*types.Cart, error) {
	return s.cart.mutate(ctx, ch, mutation{
		name:  name,
		apply: apply,
	})
}
