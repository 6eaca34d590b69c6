package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/http/response"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/services"
)

type LoyaltyHandler struct {
	log      *logger.Logger
	carts    *services.CartService
	loyalty  *services.LoyaltyService
	checkout *services.CheckoutService
	secure   bool
}

func NewLoyaltyHandler(log *logger.Logger, carts *services.CartService, loyalty *services.LoyaltyService, checkout *services.CheckoutService, secureCookies bool) *LoyaltyHandler {
	return &LoyaltyHandler{
		log:      log.With("handler", "LoyaltyHandler"),
		carts:    carts,
		loyalty:  loyalty,
		checkout: checkout,
		secure:   secureCookies,
	}
}

// Account returns the balance plus the applied state derived from the
// current cart.
func (h *LoyaltyHandler) Account(c *gin.Context) {
	account, err := h.loyalty.Account(c.Request.Context())
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	applied := false
	ch := newCookieChannel(c, h.secure)
	if cart, cerr := h.carts.Current(c.Request.Context(), ch); cerr == nil && cart != nil {
		applied = h.loyalty.Applied(cart)
	}
	response.RespondOK(c, gin.H{
		"account": account,
		"applied": applied,
	})
}

func (h *LoyaltyHandler) Redeem(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.Current(c.Request.Context(), ch)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	if cart == nil {
		response.RespondCheckoutError(c, checkouterr.NoCart())
		return
	}
	updated, err := h.loyalty.Apply(c.Request.Context(), ch, cart)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"cart":    updated,
		"applied": h.loyalty.Applied(updated),
		"step":    h.checkout.Step(updated),
	})
}

func (h *LoyaltyHandler) RemoveRedemption(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.Current(c.Request.Context(), ch)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	if cart == nil {
		response.RespondCheckoutError(c, checkouterr.NoCart())
		return
	}
	updated, err := h.loyalty.Remove(c.Request.Context(), ch, cart)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"cart":    updated,
		"applied": h.loyalty.Applied(updated),
		"step":    h.checkout.Step(updated),
	})
}
