package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/domain"
)

func newTestCheckout(t *testing.T, store *storage.MemoryStore) *CheckoutService {
	orders := newTestOrderService(t, store, testStrategyConfig(StrategyPessimistic))
	idem := NewIdempotencyService(storage.NewMemoryIdempotencyRepository(), store)
	return NewCheckoutService(orders, idem, store)
}

func TestCheckout_WithoutKeyPlacesEveryTime(t *testing.T) {
	store := newTestStore(product(1, "30000", 10))
	checkout := newTestCheckout(t, store)
	items := []ItemRequest{{ProductNumber: 1, Quantity: 1}}

	first, err := checkout.PlaceOrder(context.Background(), "", items)
	require.NoError(t, err)
	second, err := checkout.PlaceOrder(context.Background(), "", items)
	require.NoError(t, err)

	assert.NotEqual(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 8, stockOf(t, store, 1))
}

func TestCheckout_WithKeyReplays(t *testing.T) {
	store := newTestStore(product(1, "30000", 10))
	checkout := newTestCheckout(t, store)
	items := []ItemRequest{{ProductNumber: 1, Quantity: 2}}

	first, err := checkout.PlaceOrder(context.Background(), "client-42", items)
	require.NoError(t, err)
	assert.Equal(t, "60000.00", first.PaymentAmount.String())

	second, err := checkout.PlaceOrder(context.Background(), "client-42", items)
	require.NoError(t, err)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 8, stockOf(t, store, 1))
}

func TestCheckout_ConcurrentRetriesOfOneRequest(t *testing.T) {
	store := newTestStore(product(1, "100", 100))
	checkout := newTestCheckout(t, store)

	var ok, dup atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := checkout.PlaceOrder(context.Background(), "retry-storm", []ItemRequest{{ProductNumber: 1, Quantity: 1}})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, domain.ErrDuplicateRequest):
				dup.Add(1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, int32(10), ok.Load()+dup.Load())
	assert.Equal(t, 1, store.OrderCount())
	assert.Equal(t, 99, stockOf(t, store, 1))
}

func TestCheckout_GetOrder(t *testing.T) {
	store := newTestStore(product(1, "100", 10))
	checkout := newTestCheckout(t, store)

	placed, err := checkout.PlaceOrder(context.Background(), "", []ItemRequest{{ProductNumber: 1, Quantity: 1}})
	require.NoError(t, err)

	got, err := checkout.GetOrder(context.Background(), placed.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, placed.OrderNumber, got.OrderNumber)

	_, err = checkout.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCheckout_ShippingPolicy(t *testing.T) {
	checkout := newTestCheckout(t, newTestStore())
	policy := checkout.ShippingPolicy()
	assert.Equal(t, "50000.00", policy.FreeShippingThreshold.String())
	assert.Equal(t, "2500.00", policy.Fee.String())
}
