package service

import (
	"context"
	"fmt"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// optimisticStrategy reads without locking and relies on the version guard
// of UpdateInventory. A lost race restarts the whole attempt.
type optimisticStrategy struct {
	retry RetryPolicy
}

func (s *optimisticStrategy) Name() StrategyName { return StrategyOptimistic }

func (s *optimisticStrategy) Place(ctx context.Context, store port.InventoryStore, r Reservation) (*domain.Order, error) {
	return retryTransient(ctx, s.retry, func() (*domain.Order, error) {
		var order *domain.Order
		err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			lines := make([]domain.OrderLine, 0, len(r.Items))
			for _, item := range r.Items {
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
	}, r.OnRetry)
}
