package services

import (
	"context"
	"time"

	redisclient "github.com/marlowe/storefront-backend/internal/clients/redis"
	"github.com/marlowe/storefront-backend/internal/platform/envutil"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

// CartCookieName is the server-readable channel of the cart identity.
const CartCookieName = "_storefront_cart_id"

// DeviceCookieName keys the durable channel; the middleware guarantees it
// exists before any cart endpoint runs.
const DeviceCookieName = "_storefront_device_id"

// CookieChannel abstracts the request's cookie jar so the identity store
// can be exercised without gin.
type CookieChannel interface {
	DeviceID() string
	CartCookie() (string, bool)
	SetCartCookie(cartID string, ttl time.Duration)
	ClearCartCookie()
}

// IdentityService keeps the two identity channels in agreement: durable
// store first on read, cookie as fallback, both written together. It makes
// no network calls to the commerce backend; both channels empty means
// "no cart", never an error.
type IdentityService struct {
	log   *logger.Logger
	store redisclient.Store
	ttl   time.Duration
}

func NewIdentityService(log *logger.Logger, store redisclient.Store) *IdentityService {
	return &IdentityService{
		log:   log.With("service", "IdentityService"),
		store: store,
		ttl:   envutil.Duration("CART_ID_TTL", 7*24*time.Hour),
	}
}

func (s *IdentityService) TTL() time.Duration { return s.ttl }

func durableKey(deviceID string) string { return "cartid:" + deviceID }

// Resolve returns the active cart id, preferring the durable channel and
// healing whichever channel is missing. A redis failure degrades to the
// cookie channel rather than erroring.
func (s *IdentityService) Resolve(ctx context.Context, ch CookieChannel) (string, bool) {
	deviceID := ch.DeviceID()
	if deviceID != "" {
		id, found, err := s.store.Get(ctx, durableKey(deviceID))
		if err != nil {
			s.log.Warn("durable identity read failed, falling back to cookie", "device_id", deviceID, "error", err)
		} else if found && id != "" {
			// Sliding window on both channels.
			if err := s.store.Set(ctx, durableKey(deviceID), id, s.ttl); err != nil {
				s.log.Warn("durable identity refresh failed", "device_id", deviceID, "error", err)
			}
			ch.SetCartCookie(id, s.ttl)
			return id, true
		}
	}

	id, ok := ch.CartCookie()
	if !ok || id == "" {
		return "", false
	}
	// Cookie hit with an empty durable channel: write it back.
	if deviceID != "" {
		if err := s.store.Set(ctx, durableKey(deviceID), id, s.ttl); err != nil {
			s.log.Warn("durable identity writeback failed", "device_id", deviceID, "error", err)
		}
	}
	ch.SetCartCookie(id, s.ttl)
	return id, true
}

// Save writes the id to both channels and refreshes the sliding expiry.
func (s *IdentityService) Save(ctx context.Context, ch CookieChannel, cartID string) {
	if cartID == "" {
		return
	}
	if deviceID := ch.DeviceID(); deviceID != "" {
		if err := s.store.Set(ctx, durableKey(deviceID), cartID, s.ttl); err != nil {
			s.log.Warn("durable identity write failed", "device_id", deviceID, "error", err)
		}
	}
	ch.SetCartCookie(cartID, s.ttl)
}

// Clear drops the identity from both channels. Done on order completion
// and explicit cart clear.
func (s *IdentityService) Clear(ctx context.Context, ch CookieChannel) {
	if deviceID := ch.DeviceID(); deviceID != "" {
		if err := s.store.Del(ctx, durableKey(deviceID)); err != nil {
			s.log.Warn("durable identity clear failed", "device_id", deviceID, "error", err)
		}
	}
	ch.ClearCartCookie()
}
