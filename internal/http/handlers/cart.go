package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marlowe/storefront-backend/internal/http/response"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/services"
	"github.com/marlowe/storefront-backend/internal/types"
)

type CartHandler struct {
	log      *logger.Logger
	carts    *services.CartService
	checkout *services.CheckoutService
	secure   bool
}

func NewCartHandler(log *logger.Logger, carts *services.CartService, checkout *services.CheckoutService, secureCookies bool) *CartHandler {
	return &CartHandler{
		log:      log.With("handler", "CartHandler"),
		carts:    carts,
		checkout: checkout,
		secure:   secureCookies,
	}
}

type cartResponse struct {
	Cart *types.Cart        `json:"cart"`
	Step types.CheckoutStep `json:"step,omitempty"`
	// Mutating mirrors the coordinator's in-flight flag so the UI can
	// disable quantity steppers and remove buttons.
	Mutating bool `json:"mutating"`
}

func (h *CartHandler) respondCart(c *gin.Context, cart *types.Cart) {
	resp := cartResponse{Cart: cart}
	if cart != nil {
		resp.Step = h.checkout.Step(cart)
		resp.Mutating = h.carts.InFlight(cart.ID)
	}
	response.RespondOK(c, resp)
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.Current(c.Request.Context(), ch)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

type addLineItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) AddLineItem(c *gin.Context) {
	var req addLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.AddItem(c.Request.Context(), ch, req.VariantID, req.Quantity, h.attribution(c))
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

// attribution reads the sales-rep referral code captured by the request
// context middleware, query parameter first.
func (h *CartHandler) attribution(c *gin.Context) string {
	if rep := strings.TrimSpace(c.Query("rep")); rep != "" {
		return rep
	}
	if rep, err := c.Cookie("_storefront_rep"); err == nil {
		return strings.TrimSpace(rep)
	}
	return ""
}

type updateLineItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateLineItem(c *gin.Context) {
	var req updateLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.UpdateItem(c.Request.Context(), ch, c.Param("id"), req.Quantity)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *CartHandler) RemoveLineItem(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.RemoveItem(c.Request.Context(), ch, c.Param("id"))
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *CartHandler) SetAddresses(c *gin.Context) {
	var req services.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.SetAddresses(c.Request.Context(), ch, req)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

type setRegionRequest struct {
	RegionID string `json:"region_id"`
}

func (h *CartHandler) SetRegion(c *gin.Context) {
	var req setRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.SetRegion(c.Request.Context(), ch, req.RegionID)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

type promotionRequest struct {
	Code string `json:"code"`
}

func (h *CartHandler) ApplyPromotion(c *gin.Context) {
	var req promotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.ApplyPromotion(c.Request.Context(), ch, req.Code)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *CartHandler) RemovePromotion(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.RemovePromotion(c.Request.Context(), ch, c.Param("code"))
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *CartHandler) AttachCustomer(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	cart, err := h.carts.AttachCustomer(c.Request.Context(), ch)
	if err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	h.respondCart(c, cart)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	ch := newCookieChannel(c, h.secure)
	if err := h.carts.Clear(c.Request.Context(), ch); err != nil {
		response.RespondCheckoutError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"cleared": true})
}
