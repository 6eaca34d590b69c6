package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	redisclient "github.com/marlowe/storefront-backend/internal/clients/redis"
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/types"
)

// CarrierPolicy restricts which carrier services are ever offered.
// Options from a restricted provider family are excluded from the
// selectable set entirely unless their service code is allow-listed.
type CarrierPolicy struct {
	RestrictedProviders []string `yaml:"restricted_providers"`
	AllowedServiceCodes []string `yaml:"allowed_service_codes"`
}

func LoadCarrierPolicy(path string) (CarrierPolicy, error) {
	var p CarrierPolicy
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read carrier policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse carrier policy: %w", err)
	}
	return p, nil
}

func (p CarrierPolicy) Allows(opt types.ShippingOption) bool {
	restricted := false
	provider := strings.ToLower(opt.ProviderID)
	for _, prefix := range p.RestrictedProviders {
		if prefix != "" && strings.HasPrefix(provider, strings.ToLower(prefix)) {
			restricted = true
			break
		}
	}
	if !restricted {
		return true
	}
	code := strings.ToLower(strings.TrimSpace(opt.ServiceCode))
	for _, allowed := range p.AllowedServiceCodes {
		if code != "" && code == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ResolvedOption is a selectable shipping option together with whatever
// price is already known. Calculated options without a cached rate carry
// Amount -1 and get filled in by prefetch or an explicit apply.
type ResolvedOption struct {
	types.ShippingOption
	// ResolvedAmount is in minor units; -1 when not yet known.
	ResolvedAmount int64 `json:"resolved_amount"`
}

// ShippingService resolves a price for a shipping service: directly for
// flat-rate options, via an on-demand backend calculation for
// carrier-calculated ones, cached per option for the lifetime of the
// current address.
type ShippingService struct {
	log      *logger.Logger
	commerce commerce.Client
	cart     *CartService
	cache    redisclient.Store
	policy   CarrierPolicy
	rateTTL  time.Duration
}

func NewShippingService(log *logger.Logger, cc commerce.Client, cart *CartService, cache redisclient.Store) (*ShippingService, error) {
	policy, err := LoadCarrierPolicy(envutil.String("SHIPPING_POLICY_PATH", ""))
	if err != nil {
		return nil, err
	}
	return &ShippingService{
		log:      log.With("service", "ShippingService"),
		commerce: cc,
		cart:     cart,
		cache:    cache,
		policy:   policy,
		rateTTL:  envutil.Duration("SHIPPING_RATE_TTL", time.Hour),
	}, nil
}

// normalizeToMinorUnits converts a rate amount to minor units. An explicit
// unit from the backend always wins. Without one, a fractional amount can
// only be major units (9.10 is 910 cents) while an integral amount is taken
// as already minor (910 is 910 cents, 1000 is 1000 cents). Upstream rate
// sources disagree on units, so this is a best-effort guard with a known
// fuzzy case: a whole-dollar major amount arriving as a bare integer reads
// as cents. Sources that send those are expected to label the unit.
func normalizeToMinorUnits(amount float64, unit string) int64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minor":
		return int64(math.Round(amount))
	case "major":
		return int64(math.Round(amount * 100))
	}
	if amount != math.Trunc(amount) {
		return int64(math.Round(amount * 100))
	}
	return int64(amount)
}

// addressFingerprint scopes cached rates to the current destination; any
// address change makes previous entries unreachable.
func addressFingerprint(cart *types.Cart) string {
	addr := cart.ShippingAddress
	if addr == nil {
		return "noaddr"
	}
	h := sha256.New()
	for _, part := range []string{addr.Address1, addr.Address2, addr.City, addr.Province, addr.PostalCode, addr.CountryCode} {
		_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func rateKey(cart *types.Cart, optionID string) string {
	return fmt.Sprintf("rate:%s:%s:%s", cart.ID, addressFingerprint(cart), optionID)
}

// ListOptions returns the policy-filtered options for the cart with any
// already-known prices, and kicks off a concurrent prefetch of calculated
// rates that are still missing. The prefetch never blocks the response.
func (s *ShippingService) ListOptions(ctx context.Context, cart *types.Cart) ([]ResolvedOption, error) {
	options, err := s.commerce.ListShippingOptions(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	out := make([]ResolvedOption, 0, len(options))
	var missing []types.ShippingOption
	for _, opt := range options {
		if !s.policy.Allows(opt) {
			continue
		}
		ro := ResolvedOption{ShippingOption: opt, ResolvedAmount: -1}
		switch opt.PriceType {
		case types.PriceTypeFlat:
			ro.ResolvedAmount = normalizeToMinorUnits(opt.Amount, opt.AmountUnit)
		case types.PriceTypeCalculated:
			if amount, ok := s.cachedRate(ctx, cart, opt.ID); ok {
				ro.ResolvedAmount = amount
			} else {
				missing = append(missing, opt)
			}
		}
		out = append(out, ro)
	}

	if len(missing) > 0 {
		s.prefetch(cart, missing)
	}
	return out, nil
}

func (s *ShippingService) cachedRate(ctx context.Context, cart *types.Cart, optionID string) (int64, bool) {
	raw, found, err := s.cache.Get(ctx, rateKey(cart, optionID))
	if err != nil {
		s.log.Warn("rate cache read failed", "cart_id", cart.ID, "option_id", optionID, "error", err)
		return 0, false
	}
	if !found {
		return 0, false
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// prefetch calculates missing rates concurrently, fire and forget. Writes
// use SetNX so a slower prefetch can never clobber a rate an explicit
// apply already resolved for the same option.
func (s *ShippingService) prefetch(cart *types.Cart, options []types.ShippingOption) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	g, gctx := errgroup.WithContext(ctx)
	for _, opt := range options {
		opt := opt
		g.Go(func() error {
			rate, err := s.commerce.CalculateShippingOption(gctx, cart.ID, opt.ID)
			if err != nil {
				s.log.Warn("rate prefetch failed", "cart_id", cart.ID, "option_id", opt.ID, "error", err)
				return nil
			}
			amount := normalizeToMinorUnits(rate.Amount, rate.AmountUnit)
			key := rateKey(cart, opt.ID)
			if _, err := s.cache.SetNX(gctx, key, strconv.FormatInt(amount, 10), s.rateTTL); err != nil {
				s.log.Warn("rate cache write failed", "cart_id", cart.ID, "option_id", opt.ID, "error", err)
				return nil
			}
			_ = s.cache.Tag(gctx, tagRates(cart.ID), key)
			return nil
		})
	}
	go func() {
		defer cancel()
		_ = g.Wait()
	}()
}

// Resolve returns the option's price in minor units: immediately for flat
// options, from cache or an on-demand calculation for calculated ones.
// direct bypasses the cache and overwrites it, which is how an explicit
// user-initiated apply wins over a slower prefetch.
func (s *ShippingService) Resolve(ctx context.Context, cart *types.Cart, opt types.ShippingOption, direct bool) (int64, error) {
	if opt.PriceType == types.PriceTypeFlat {
		return normalizeToMinorUnits(opt.Amount, opt.AmountUnit), nil
	}
	if !direct {
		if amount, ok := s.cachedRate(ctx, cart, opt.ID); ok {
			return amount, nil
		}
	}
	rate, err := s.commerce.CalculateShippingOption(ctx, cart.ID, opt.ID)
	if err != nil {
		return 0, err
	}
	amount := normalizeToMinorUnits(rate.Amount, rate.AmountUnit)
	key := rateKey(cart, opt.ID)
	if err := s.cache.Set(ctx, key, strconv.FormatInt(amount, 10), s.rateTTL); err != nil {
		s.log.Warn("rate cache write failed", "cart_id", cart.ID, "option_id", opt.ID, "error", err)
	} else {
		_ = s.cache.Tag(ctx, tagRates(cart.ID), key)
	}
	return amount, nil
}

// Apply resolves the option's rate and sets it as the cart's shipping
// method through the mutation coordinator.
func (s *ShippingService) Apply(ctx context.Context, ch CookieChannel, cart *types.Cart, optionID string) (*types.Cart, error) {
	options, err := s.commerce.ListShippingOptions(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	var selected *types.ShippingOption
	for i := range options {
		if options[i].ID == optionID {
			selected = &options[i]
			break
		}
	}
	if selected == nil || !s.policy.Allows(*selected) {
		return nil, checkouterr.Validation("option_id", fmt.Errorf("shipping option %s is not available for this cart", optionID))
	}
	if selected.InsufficientInventory {
		return nil, checkouterr.New(409, checkouterr.CodeInsufficientInventory,
			fmt.Errorf("%s cannot be selected: not enough stock to fulfill from this location", selected.Name))
	}

	amount, err := s.Resolve(ctx, cart, *selected, true)
	if err != nil {
		return nil, err
	}
	return s.cart.SetShippingMethod(ctx, ch, optionID, amount, s.crossesFulfillmentKind(cart, options, *selected))
}

// crossesFulfillmentKind reports whether the cart already carries a method
// of the opposite fulfillment kind. Pickup and shipment selections are
// mutually exclusive, so a switch clears the old one before the new
// selection is submitted.
func (s *ShippingService) crossesFulfillmentKind(cart *types.Cart, options []types.ShippingOption, selected types.ShippingOption) bool {
	for _, m := range cart.ShippingMethods {
		for _, opt := range options {
			if opt.ID == m.ShippingOptionID && fulfillmentKind(opt) != fulfillmentKind(selected) {
				return true
			}
		}
	}
	return false
}

// Options without a stated type are carrier shipments.
func fulfillmentKind(opt types.ShippingOption) types.FulfillmentType {
	if opt.Type == types.FulfillmentPickup {
		return types.FulfillmentPickup
	}
	return types.FulfillmentShipment
}
