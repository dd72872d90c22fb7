package service

import (
	"context"
	"fmt"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// pessimisticStrategy locks every row it touches for the whole transaction.
// Rows are locked in product number order so two orders never wait on each
// other in a cycle.
type pessimisticStrategy struct {
	retry RetryPolicy
}

func (s *pessimisticStrategy) Name() StrategyName { return StrategyPessimistic }

func (s *pessimisticStrategy) Place(ctx context.Context, store port.InventoryStore, r Reservation) (*domain.Order, error) {
	return retryTransient(ctx, s.retry, func() (*domain.Order, error) {
		var order *domain.Order
		err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			lines := make([]domain.OrderLine, 0, len(r.Items))
			for _, item := range r.Items {
				inv, err := tx.GetInventoryForUpdate(ctx, item.ProductNumber)
				if err != nil {
					return fmt.Errorf("lock inventory %d: %w", item.ProductNumber, err)
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
