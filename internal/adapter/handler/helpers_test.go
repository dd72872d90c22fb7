package handler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
)

func newTestCheckout(t *testing.T) (*service.CheckoutService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(time.Second)
	store.PutInventory(domain.Inventory{
		ProductNumber: 1,
		Name:          "keyboard",
		Price:         domain.MustParseMoney("49999"),
		Stock:         3,
	})
	store.PutInventory(domain.Inventory{
		ProductNumber: 2,
		Name:          "mouse",
		Price:         domain.MustParseMoney("1200"),
		Stock:         10,
	})

	strategy, err := service.NewLockingStrategy(service.DefaultStrategyConfig())
	require.NoError(t, err)
	orders, err := service.NewOrderService(store, strategy, domain.DefaultShippingPolicy(),
		service.WithOrderLogger(zerolog.Nop()))
	require.NoError(t, err)

	idem := service.NewIdempotencyService(storage.NewMemoryIdempotencyRepository(), store)
	return service.NewCheckoutService(orders, idem, store), store
}
