package app

import (
	"fmt"

	"github.com/marlowe/storefront-backend/internal/clients/commerce"
	redisclient "github.com/marlowe/storefront-backend/internal/clients/redis"
	"github.com/marlowe/storefront-backend/internal/platform/logger"
)

type Clients struct {
	Commerce commerce.Client
	Store    redisclient.Store
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	cc, err := commerce.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init commerce client: %w", err)
	}

	store, err := redisclient.New(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis store: %w", err)
	}

	return Clients{
		Commerce: cc,
		Store:    store,
	}, nil
}
