package app

import (
	"fmt"

	"github.com/marlowe/storefront-backend/internal/platform/logger"
	"github.com/marlowe/storefront-backend/internal/services"
)

type Services struct {
	Identity *services.IdentityService
	Cart     *services.CartService
	Shipping *services.ShippingService
	Loyalty  *services.LoyaltyService
	Checkout *services.CheckoutService
}

func wireServices(log *logger.Logger, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	identity := services.NewIdentityService(log, clients.Store)
	cart := services.NewCartService(log, clients.Commerce, identity, clients.Store)
	shipping, err := services.NewShippingService(log, clients.Commerce, cart, clients.Store)
	if err != nil {
		return Services{}, fmt.Errorf("init shipping service: %w", err)
	}
	loyalty := services.NewLoyaltyService(log, clients.Commerce, cart)
	checkout := services.NewCheckoutService(log, clients.Commerce, identity, clients.Store)

	return Services{
		Identity: identity,
		Cart:     cart,
		Shipping: shipping,
		Loyalty:  loyalty,
		Checkout: checkout,
	}, nil
}
