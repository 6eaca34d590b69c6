package app

import (
	"github.com/gin-gonic/gin"

	storehttp "github.com/marlowe/storefront-backend/internal/http"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return storehttp.NewRouter(storehttp.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.Auth,
		SecureCookies:   cfg.SecureCookies,
		ServiceName:     cfg.ServiceName,
		HealthHandler:   handlers.Health,
		CartHandler:     handlers.Cart,
		ShippingHandler: handlers.Shipping,
		LoyaltyHandler:  handlers.Loyalty,
		CheckoutHandler: handlers.Checkout,
	})
}
