package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/marlowe/storefront-backend/internal/http/handlers"
	httpMW "github.com/marlowe/storefront-backend/internal/http/middleware"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware
	SecureCookies  bool
	ServiceName    string

	HealthHandler   *httpH.HealthHandler
	CartHandler     *httpH.CartHandler
	ShippingHandler *httpH.ShippingHandler
	LoyaltyHandler  *httpH.LoyaltyHandler
	CheckoutHandler *httpH.CheckoutHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.CORS())
	r.Use(httpMW.AttachRequestContext(cfg.SecureCookies))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Optional())
		}

		// Cart
		if cfg.CartHandler != nil {
			api.GET("/cart", cfg.CartHandler.GetCart)
			api.DELETE("/cart", cfg.CartHandler.ClearCart)
			api.POST("/cart/line-items", cfg.CartHandler.AddLineItem)
			api.POST("/cart/line-items/:id", cfg.CartHandler.UpdateLineItem)
			api.DELETE("/cart/line-items/:id", cfg.CartHandler.RemoveLineItem)
			api.POST("/cart/addresses", cfg.CartHandler.SetAddresses)
			api.POST("/cart/region", cfg.CartHandler.SetRegion)
			api.POST("/cart/promotions", cfg.CartHandler.ApplyPromotion)
			api.DELETE("/cart/promotions/:code", cfg.CartHandler.RemovePromotion)
		}

		// Shipping
		if cfg.ShippingHandler != nil {
			api.GET("/shipping-options", cfg.ShippingHandler.ListOptions)
			api.POST("/shipping-options/:id/apply", cfg.ShippingHandler.ApplyOption)
		}

		// Checkout
		if cfg.CheckoutHandler != nil {
			api.GET("/checkout/step", cfg.CheckoutHandler.Step)
			api.POST("/checkout/complete", cfg.CheckoutHandler.Complete)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.Require())
		}

		// Customer attach and loyalty need a signed-in shopper.
		if cfg.CartHandler != nil {
			protected.POST("/cart/customer", cfg.CartHandler.AttachCustomer)
		}
		if cfg.LoyaltyHandler != nil {
			protected.GET("/loyalty", cfg.LoyaltyHandler.Account)
			protected.POST("/loyalty/redeem", cfg.LoyaltyHandler.Redeem)
			protected.DELETE("/loyalty/redeem", cfg.LoyaltyHandler.RemoveRedemption)
		}
	}

	return r
}
