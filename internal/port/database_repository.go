package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
)

var (
	// ErrOptimisticLock is returned when a revision-checked write finds that
	// another writer updated the row first.
	ErrOptimisticLock = errors.New("optimistic lock conflict")

	// ErrLockTimeout is returned when a row or product lock could not be
	// acquired in time, including deadlock victims.
	ErrLockTimeout = errors.New("lock wait timeout")
)

type InventoryStore interface {
	// WithinTx runs fn in one transaction. Writes staged through tx become
	// visible together when fn returns nil and are discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error

	// GetInventory reads committed state, nil when the product does not exist
	GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error)
}

type InventoryTx interface {
	GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error)

	// GetInventoryForUpdate reads the row and holds an exclusive lock on it
	// until the transaction ends
	GetInventoryForUpdate(ctx context.Context, productNumber int64) (*domain.Inventory, error)

	// UpdateInventory writes stock guarded by inv.Version and bumps the version
	UpdateInventory(ctx context.Context, inv domain.Inventory) error

	CreateOrder(ctx context.Context, order domain.Order) error
}

type OrderRepository interface {
	// GetOrder returns nil when no order has the number
	GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error)

	// ListOrders returns orders placed in [from, to), newest first
	ListOrders(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Order, error)
}
