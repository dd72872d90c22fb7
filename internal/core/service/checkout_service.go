package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// CheckoutService is what the transports call. Requests carrying an
// idempotency key go through the IdempotencyService.
type CheckoutService struct {
	orders      *OrderService
	idempotency *IdempotencyService
	repo        port.OrderRepository
}

func NewCheckoutService(orders *OrderService, idempotency *IdempotencyService, repo port.OrderRepository) *CheckoutService {
	return &CheckoutService{orders: orders, idempotency: idempotency, repo: repo}
}

func (c *CheckoutService) PlaceOrder(ctx context.Context, idempotencyKey string, items []ItemRequest) (*domain.Order, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return c.orders.PlaceOrder(ctx, items)
	}
	return c.idempotency.Execute(ctx, idempotencyKey, func(ctx context.Context) (*domain.Order, error) {
		return c.orders.PlaceOrder(ctx, items)
	})
}

func (c *CheckoutService) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := c.repo.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderNumber)
	}
	return order, nil
}

func (c *CheckoutService) ShippingPolicy() domain.ShippingPolicy {
	return c.orders.ShippingPolicy()
}
