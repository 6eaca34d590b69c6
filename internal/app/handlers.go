package app

import (
	httpH "github.com/marlowe/storefront-backend/internal/http/handlers"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Cart     *httpH.CartHandler
	Shipping *httpH.ShippingHandler
	Loyalty  *httpH.LoyaltyHandler
	Checkout *httpH.CheckoutHandler
}

func wireHandlers(log *logger.Logger, cfg Config, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Cart:     httpH.NewCartHandler(log, svc.Cart, svc.Checkout, cfg.SecureCookies),
		Shipping: httpH.NewShippingHandler(log, svc.Cart, svc.Shipping, svc.Checkout, cfg.SecureCookies),
		Loyalty:  httpH.NewLoyaltyHandler(log, svc.Cart, svc.Loyalty, svc.Checkout, cfg.SecureCookies),
		Checkout: httpH.NewCheckoutHandler(log, svc.Cart, svc.Checkout, cfg.SecureCookies),
	}
}
