package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/checkouterr"
	"github.com/marlowe/storefront-backend/internal/http/response"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/services"
)

type ShippingHandler struct {
	log      *logger.Logger
	carts    *services.CartService
	shipping *services.ShippingService
	checkout *services.CheckoutService
	secure   bool
}

func NewShippingHandler(log *logger.Logger, carts *services.CartService, shipping *services.ShippingService, checkout *services.CheckoutService, secureCookies bool) *ShippingHandler {
	return &ShippingHandler{
		log:      log.With("handler", "ShippingHandler"),
		carts:    carts,
		shipping: shipping,
		checkout: checkout,
		secure:   secureCookies,
	}
}

func (h *ShippingHandler) ListOptions(c *gin.Context) {
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
	options, err := h.shipping.ListOptions(c.Request.Context(), cart)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"shipping_options": options})
}

func (h *ShippingHandler) ApplyOption(c *gin.Context) {
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
	updated, err := h.shipping.Apply(c.Request.Context(), ch, cart, c.Param("id"))
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"cart": updated,
		"step": h.checkout.Step(updated),
	})
}
