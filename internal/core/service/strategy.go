package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

type StrategyName string

const (
	StrategyPessimistic StrategyName = "pessimistic"
	StrategyMutex       StrategyName = "mutex"
	StrategyOptimistic  StrategyName = "optimistic"
)

func ParseStrategyName(s string) (StrategyName, error) {
	switch name := StrategyName(s); name {
	case StrategyPessimistic, StrategyMutex, StrategyOptimistic:
		return name, nil
	case "":
		return StrategyOptimistic, nil
	default:
		return "", fmt.Errorf("unknown order strategy %q", s)
	}
}

// ItemRequest is one requested product line.
type ItemRequest struct {
	ProductNumber int64 `json:"product_number"`
	Quantity      int   `json:"quantity"`
}

// Reservation is a validated placement handed to a LockingStrategy. Items are
// sorted by product number.
type Reservation struct {
	Items []ItemRequest

	// OnRetry is called before a transient failure is retried.
	OnRetry func(err error, next time.Duration)

	build func(lines []domain.OrderLine) domain.Order
}

// LockingStrategy reserves stock for a Reservation and persists the order in
// the same transaction.
type LockingStrategy interface {
	Name() StrategyName
	Place(ctx context.Context, store port.InventoryStore, r Reservation) (*domain.Order, error)
}

type StrategyConfig struct {
	Name             StrategyName
	Pessimistic      RetryPolicy
	Mutex            RetryPolicy
	MutexLockTimeout time.Duration
	Optimistic       RetryPolicy
}

func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name: StrategyOptimistic,
		Pessimistic: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
		},
		Mutex: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
		},
		MutexLockTimeout: 5 * time.Second,
		Optimistic: RetryPolicy{
			MaxAttempts:    5,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     time.Second,
			Multiplier:     2,
		},
	}
}

func NewLockingStrategy(cfg StrategyConfig) (LockingStrategy, error) {
	switch cfg.Name {
	case StrategyPessimistic:
		return &pessimisticStrategy{retry: cfg.Pessimistic}, nil
	case StrategyMutex:
		return &mutexStrategy{retry: cfg.Mutex, locks: newProductLocks(cfg.MutexLockTimeout)}, nil
	case StrategyOptimistic, "":
		return &optimisticStrategy{retry: cfg.Optimistic}, nil
	default:
		return nil, fmt.Errorf("unknown order strategy %q", cfg.Name)
	}
}

// reserveItem takes item.Quantity from inv and stages the revision-checked
// write. inv is nil when the product does not exist.
func reserveItem(ctx context.Context, tx port.InventoryTx, inv *domain.Inventory, item ItemRequest) (domain.OrderLine, error) {
	if inv == nil {
		return domain.OrderLine{}, domain.ProductNotFound(item.ProductNumber)
	}
	if err := inv.Decrease(item.Quantity); err != nil {
		return domain.OrderLine{}, err
	}
	if err := tx.UpdateInventory(ctx, *inv); err != nil {
		return domain.OrderLine{}, fmt.Errorf("update inventory %d: %w", item.ProductNumber, err)
	}
	return domain.NewOrderLine(*inv, item.Quantity), nil
}

func (r Reservation) commit(ctx context.Context, tx port.InventoryTx, lines []domain.OrderLine) (*domain.Order, error) {
	order := r.build(lines)
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}
