package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/http/response"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/services"
	"github.com/marlowe/storefront-backend/internal/types"
)

type CheckoutHandler struct {
	log      *logger.Logger
	carts    *services.CartService
	checkout *services.CheckoutService
	secure   bool
}

func NewCheckoutHandler(log *logger.Logger, carts *services.CartService, checkout *services.CheckoutService, secureCookies bool) *CheckoutHandler {
	return &CheckoutHandler{
		log:      log.With("handler", "CheckoutHandler"),
		carts:    carts,
		checkout: checkout,
		secure:   secureCookies,
	}
}

// Step re-derives the authorized step. The ?step= query parameter is only
// ever a hint from the page URL; a stale one gets clamped and the caller
// redirects.
func (h *CheckoutHandler) Step(c *gin.Context) {
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
	resolved := h.checkout.Step(cart)
	requested, ok := types.ParseCheckoutStep(c.Query("step"))
	authorized := resolved
	if ok {
		authorized = h.checkout.Authorize(cart, requested)
	}
	response.RespondOK(c, gin.H{
		"step":     authorized,
		"resolved": resolved,
		"redirect": !ok || authorized != requested,
	})
}

func (h *CheckoutHandler) Complete(c *gin.Context) {
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
	res, err := h.checkout.Complete(c.Request.Context(), ch, cart.ID)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	if res.Order != nil {
		response.RespondOK(c, gin.H{
			"type":  "order",
			"order": res.Order,
		})
		return
	}
	// Still-open cart: tell the UI which step to reopen instead of
	// presenting a generic payment failure.
	c.JSON(http.StatusConflict, gin.H{
		"type": "cart",
		"cart": res.Cart,
		"error": response.APIError{
			Message:    res.Err.Error(),
			Code:       string(checkouterr.CodeOf(res.Err)),
			ReopenStep: res.ReopenStep.String(),
		},
	})
}
