package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	redisclient "github.com/marlowe/storefront-backend/internal/clients/redis"
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

func tagCart(cartID string) string  { return "tag:cart:" + cartID }
func tagRates(cartID string) string { return "tag:rates:" + cartID }

// CartService is the single path through which any cart-affecting action
// runs. Every mutation clears stale shipping state when needed, applies
// the action on the backend, re-fetches the canonical cart and invalidates
// the cache tags the action could have touched.
type CartService struct {
	log      *logger.Logger
	commerce commerce.Client
	identity *IdentityService
	cache    redisclient.Store

	defaultRegionID string

	locks sync.Map // cart id -> *cartLock
}

type cartLock struct {
	mu       sync.Mutex
	inFlight atomic.Bool
}

func NewCartService(log *logger.Logger, cc commerce.Client, identity *IdentityService, cache redisclient.Store) *CartService {
	return &CartService{
		log:             log.With("service", "CartService"),
		commerce:        cc,
		identity:        identity,
		cache:           cache,
		defaultRegionID: envutil.String("DEFAULT_REGION_ID", ""),
	}
}

// InFlight reports whether a mutation is currently running for the cart.
// The UI disables quantity steppers and remove buttons while true.
func (s *CartService) InFlight(cartID string) bool {
	v, ok := s.locks.Load(cartID)
	if !ok {
		return false
	}
	return v.(*cartLock).inFlight.Load()
}

func (s *CartService) lock(cartID string) func() {
	v, _ := s.locks.LoadOrStore(cartID, &cartLock{})
	l := v.(*cartLock)
	l.mu.Lock()
	l.inFlight.Store(true)
	return func() {
		l.inFlight.Store(false)
		l.mu.Unlock()
	}
}

// Current resolves the identity and fetches the canonical cart. A stale
// identity (backend no longer resolves it) is cleared and reported as
// "no cart" rather than an error.
func (s *CartService) Current(ctx context.Context, ch CookieChannel) (*types.Cart, error) {
	cartID, ok := s.identity.Resolve(ctx, ch)
	if !ok {
		return nil, nil
	}
	cart, err := s.commerce.GetCart(ctx, cartID)
	if err != nil {
		if checkouterr.Is(err, checkouterr.CodeNoCart) {
			s.log.Info("stored cart id no longer resolves, clearing identity", "cart_id", cartID)
			s.identity.Clear(ctx, ch)
			return nil, nil
		}
		return nil, err
	}
	return cart, nil
}

// Refresh re-fetches the canonical cart by id, for callers that already
// hold one (the loyalty toggle's revalidation path).
func (s *CartService) Refresh(ctx context.Context, cartID string) (*types.Cart, error) {
	return s.commerce.GetCart(ctx, cartID)
}

type mutation struct {
	name string
	// clearsShipping marks item-quantity- or address-affecting actions;
	// the existing shipping method is released before the action runs
	// because its price is a function of destination and package weight.
	clearsShipping bool
	// itemAffecting actions can empty the cart, which triggers a fresh
	// cart identity instead of a degenerate zero-item cart.
	itemAffecting   bool
	createIfMissing bool
	attribution     string
	apply           func(ctx context.Context, cartID string) error
}

func (s *CartService) mutate(ctx context.Context, ch CookieChannel, m mutation) (*types.Cart, error) {
	cartID, ok := s.identity.Resolve(ctx, ch)
	if !ok {
		if !m.createIfMissing {
			return nil, checkouterr.NoCart()
		}
		created, err := s.createCart(ctx, m.attribution)
		if err != nil {
			return nil, err
		}
		cartID = created.ID
		s.identity.Save(ctx, ch, cartID)
	}

	unlock := s.lock(cartID)
	defer unlock()

	run := func(id string) error {
		if m.clearsShipping {
			if err := s.commerce.ClearShippingMethods(ctx, id); err != nil {
				return err
			}
		}
		return m.apply(ctx, id)
	}

	err := run(cartID)
	if err != nil && checkouterr.Is(err, checkouterr.CodeNoCart) && m.createIfMissing {
		// The stored id went stale mid-session (expired or deleted).
		// Recreate once and retry the action; a second failure is final.
		s.log.Warn("cart vanished during mutation, recreating", "mutation", m.name, "cart_id", cartID)
		s.identity.Clear(ctx, ch)
		created, cerr := s.createCart(ctx, m.attribution)
		if cerr != nil {
			return nil, cerr
		}
		cartID = created.ID
		s.identity.Save(ctx, ch, cartID)
		err = run(cartID)
	}
	if err != nil {
		return nil, err
	}

	// Never trust the write response: the canonical cart comes from a
	// full-projection fetch.
	cart, err := s.commerce.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if m.itemAffecting && len(cart.Items) == 0 {
		cart, err = s.reissue(ctx, ch, cart)
		if err != nil {
			return nil, err
		}
	}

	// A referral code arriving after the cart exists is attached
	// best-effort; first attribution wins.
	if m.attribution != "" && cart.Metadata[types.MetadataSalesRepCode] == "" {
		if aerr := s.commerce.AttachAttribution(ctx, cart.ID, m.attribution); aerr != nil {
			s.log.Warn("attribution attach failed", "cart_id", cart.ID, "error", aerr)
		} else {
			if cart.Metadata == nil {
				cart.Metadata = map[string]string{}
			}
			cart.Metadata[types.MetadataSalesRepCode] = m.attribution
		}
	}

	s.invalidate(ctx, cartID, m.clearsShipping)
	s.identity.Save(ctx, ch, cart.ID)
	return cart, nil
}

func (s *CartService) createCart(ctx context.Context, attribution string) (*types.Cart, error) {
	if s.defaultRegionID == "" {
		return nil, checkouterr.Backend(fmt.Errorf("no region configured for cart creation"))
	}
	in := commerce.CreateCartInput{RegionID: s.defaultRegionID}
	if attribution != "" {
		in.Metadata = map[string]string{types.MetadataSalesRepCode: attribution}
	}
	cart, err := s.commerce.CreateCart(ctx, in)
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// reissue replaces an emptied cart with a freshly created one, carrying
// region and attribution over. The old cart is reset best-effort.
func (s *CartService) reissue(ctx context.Context, ch CookieChannel, old *types.Cart) (*types.Cart, error) {
	in := commerce.CreateCartInput{RegionID: old.RegionID}
	if old.RegionID == "" {
		in.RegionID = s.defaultRegionID
	}
	if rep := old.Metadata[types.MetadataSalesRepCode]; rep != "" {
		in.Metadata = map[string]string{types.MetadataSalesRepCode: rep}
	}
	fresh, err := s.commerce.CreateCart(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.commerce.ResetCart(ctx, old.ID); err != nil {
		s.log.Warn("reset of emptied cart failed", "cart_id", old.ID, "error", err)
	}
	s.invalidate(ctx, old.ID, true)
	s.identity.Save(ctx, ch, fresh.ID)
	s.log.Info("empty cart reissued", "cart_id", fresh.ID)
	return fresh, nil
}

func (s *CartService) invalidate(ctx context.Context, cartID string, shippingRelevant bool) {
	if err := s.cache.InvalidateTag(ctx, tagCart(cartID)); err != nil {
		s.log.Warn("cart tag invalidation failed", "cart_id", cartID, "error", err)
	}
	if shippingRelevant {
		if err := s.cache.InvalidateTag(ctx, tagRates(cartID)); err != nil {
			s.log.Warn("rates tag invalidation failed", "cart_id", cartID, "error", err)
		}
	}
}

// --- actions ---

func (s *CartService) AddItem(ctx context.Context, ch CookieChannel, variantID string, quantity int, attribution string) (*types.Cart, error) {
	if strings.TrimSpace(variantID) == "" {
		return nil, checkouterr.Validation("variant_id", fmt.Errorf("variant id required"))
	}
	if quantity <= 0 {
		return nil, checkouterr.Validation("quantity", fmt.Errorf("quantity must be positive"))
	}
	return s.mutate(ctx, ch, mutation{
		name:            "add_item",
		clearsShipping:  true,
		itemAffecting:   true,
		createIfMissing: true,
		attribution:     attribution,
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.AddLineItem(ctx, cartID, variantID, quantity)
			return err
		},
	})
}

func (s *CartService) UpdateItem(ctx context.Context, ch CookieChannel, lineItemID string, quantity int) (*types.Cart, error) {
	if quantity <= 0 {
		// A quantity reaching zero is an implicit removal.
		return s.RemoveItem(ctx, ch, lineItemID)
	}
	return s.mutate(ctx, ch, mutation{
		name:           "update_item",
		clearsShipping: true,
		itemAffecting:  true,
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.UpdateLineItem(ctx, cartID, lineItemID, quantity)
			return err
		},
	})
}

func (s *CartService) RemoveItem(ctx context.Context, ch CookieChannel, lineItemID string) (*types.Cart, error) {
	return s.mutate(ctx, ch, mutation{
		name:           "remove_item",
		clearsShipping: true,
		itemAffecting:  true,
		apply: func(ctx context.Context, cartID string) error {
			return s.commerce.RemoveLineItem(ctx, cartID, lineItemID)
		},
	})
}

type AddressInput struct {
	Email           string         `json:"email"`
	ShippingAddress *types.Address `json:"shipping_address"`
	BillingAddress  *types.Address `json:"billing_address,omitempty"`
	SameAsShipping  bool           `json:"same_as_shipping,omitempty"`
}

func (s *CartService) SetAddresses(ctx context.Context, ch CookieChannel, in AddressInput) (*types.Cart, error) {
	if in.ShippingAddress == nil {
		return nil, checkouterr.Validation("shipping_address", fmt.Errorf("shipping address required"))
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return nil, checkouterr.Validation("email", fmt.Errorf("invalid email"))
	}
	billing := in.BillingAddress
	if billing == nil || in.SameAsShipping {
		billing = in.ShippingAddress
	}
	return s.mutate(ctx, ch, mutation{
		name:            "set_addresses",
		clearsShipping:  true,
		createIfMissing: true,
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.UpdateCart(ctx, cartID, commerce.UpdateCartInput{
				Email:           in.Email,
				ShippingAddress: in.ShippingAddress,
				BillingAddress:  billing,
			})
			return err
		},
	})
}

// SetRegion updates the existing cart in place; a cart is only recreated
// when retrieval fails, which the mutate retry path already covers.
func (s *CartService) SetRegion(ctx context.Context, ch CookieChannel, regionID string) (*types.Cart, error) {
	if strings.TrimSpace(regionID) == "" {
		return nil, checkouterr.Validation("region_id", fmt.Errorf("region id required"))
	}
	return s.mutate(ctx, ch, mutation{
		name:            "set_region",
		clearsShipping:  true,
		createIfMissing: true,
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.UpdateCart(ctx, cartID, commerce.UpdateCartInput{RegionID: regionID})
			return err
		},
	})
}

func (s *CartService) ApplyPromotion(ctx context.Context, ch CookieChannel, code string) (*types.Cart, error) {
	if strings.TrimSpace(code) == "" {
		return nil, checkouterr.Validation("code", fmt.Errorf("promotion code required"))
	}
	return s.mutate(ctx, ch, mutation{
		name: "apply_promotion",
		apply: func(ctx context.Context, cartID string) error {
			cart, err := s.commerce.GetCart(ctx, cartID)
			if err != nil {
				return err
			}
			codes := promoCodes(cart)
			for _, existing := range codes {
				if strings.EqualFold(existing, code) {
					return nil
				}
			}
			codes = append(codes, code)
			_, err = s.commerce.UpdateCart(ctx, cartID, commerce.UpdateCartInput{PromoCodes: codes})
			return err
		},
	})
}

func (s *CartService) RemovePromotion(ctx context.Context, ch CookieChannel, code string) (*types.Cart, error) {
	return s.mutate(ctx, ch, mutation{
		name: "remove_promotion",
		apply: func(ctx context.Context, cartID string) error {
			cart, err := s.commerce.GetCart(ctx, cartID)
			if err != nil {
				return err
			}
			codes := make([]string, 0)
			for _, existing := range promoCodes(cart) {
				if !strings.EqualFold(existing, code) {
					codes = append(codes, existing)
				}
			}
			_, err = s.commerce.UpdateCart(ctx, cartID, commerce.UpdateCartInput{PromoCodes: codes})
			return err
		},
	})
}

func promoCodes(cart *types.Cart) []string {
	codes := make([]string, 0, len(cart.Promotions))
	for _, p := range cart.Promotions {
		if p.Code != "" && !p.IsAutomatic {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

func (s *CartService) AttachCustomer(ctx context.Context, ch CookieChannel) (*types.Cart, error) {
	return s.mutate(ctx, ch, mutation{
		name: "attach_customer",
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.AttachCustomer(ctx, cartID)
			return err
		},
	})
}

// SetShippingMethod attaches the resolved method. It runs through the
// coordinator so the at-most-one-method invariant and cache invalidation
// hold. Replacing a method of the same fulfillment kind does not clear
// first, the backend swaps it in the same call; clearFirst is for a
// cross-kind switch (pickup to shipment or back), where the old
// selection must be released before the new one lands.
func (s *CartService) SetShippingMethod(ctx context.Context, ch CookieChannel, optionID string, amount int64, clearFirst bool) (*types.Cart, error) {
	return s.mutate(ctx, ch, mutation{
		name:           "set_shipping_method",
		clearsShipping: clearFirst,
		apply: func(ctx context.Context, cartID string) error {
			_, err := s.commerce.AddShippingMethod(ctx, cartID, optionID, amount)
			return err
		},
	})
}

// Clear resets the backend cart and drops the identity from both channels.
func (s *CartService) Clear(ctx context.Context, ch CookieChannel) error {
	cartID, ok := s.identity.Resolve(ctx, ch)
	if !ok {
		return nil
	}
	unlock := s.lock(cartID)
	defer unlock()
	if err := s.commerce.ResetCart(ctx, cartID); err != nil && !checkouterr.Is(err, checkouterr.CodeNoCart) {
		return err
	}
	s.invalidate(ctx, cartID, true)
	s.identity.Clear(ctx, ch)
	return nil
}
