package service

import (
	"context"
	"fmt"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// mutexStrategy serialises writers per product with in-process locks.
//
// Phase 1 checks every item under its lock and releases it again, so an
// order that cannot be filled fails without holding anything. Phase 2 takes
// the locks again in product number order and keeps them until the
// transaction has committed; stock is re-verified there since it may have
// moved in between.
type mutexStrategy struct {
	retry RetryPolicy
	locks *productLocks
}

func (s *mutexStrategy) Name() StrategyName { return StrategyMutex }

func (s *mutexStrategy) Place(ctx context.Context, store port.InventoryStore, r Reservation) (*domain.Order, error) {
	return retryTransient(ctx, s.retry, func() (*domain.Order, error) {
		if err := s.verify(ctx, store, r.Items); err != nil {
			return nil, err
		}
		return s.reserve(ctx, store, r)
	}, r.OnRetry)
}

func (s *mutexStrategy) verify(ctx context.Context, store port.InventoryStore, items []ItemRequest) error {
	for _, item := range items {
		unlock, err := s.locks.acquire(ctx, item.ProductNumber)
		if err != nil {
			return err
		}
		inv, err := store.GetInventory(ctx, item.ProductNumber)
		unlock()

		if err != nil {
			return fmt.Errorf("get inventory %d: %w", item.ProductNumber, err)
		}
		if inv == nil {
			return domain.ProductNotFound(item.ProductNumber)
		}
		if err := inv.CheckAvailable(item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *mutexStrategy) reserve(ctx context.Context, store port.InventoryStore, r Reservation) (*domain.Order, error) {
	var unlocks []func()
	defer func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}()

	var order *domain.Order
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		lines := make([]domain.OrderLine, 0, len(r.Items))
		for _, item := range r.Items {
			unlock, err := s.locks.acquire(ctx, item.ProductNumber)
			if err != nil {
				return err
			}
			unlocks = append(unlocks, unlock)

			inv, err := tx.GetInventory(ctx, item.ProductNumber)
			if err != nil {
				return fmt.Errorf("get inventory %d: %w", item.ProductNumber, err)
			}
			line, err := reserveItem(ctx, tx, inv, item)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		var err error
		order, err = r.commit(ctx, tx, lines)
		return err
	})
	return order, err
}
