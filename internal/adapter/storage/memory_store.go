package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// MemoryStore keeps inventory and orders in process. It mimics the row
// semantics the MySQL adapter relies on: locking reads and writes hold the
// row until the transaction ends, writes are revision checked, and staged
// changes become visible only on commit.
type MemoryStore struct {
	mu          sync.Mutex
	rows        map[int64]*memoryRow
	orders      map[string]domain.Order
	lockTimeout time.Duration
	now         func() time.Time
}

type memoryRow struct {
	inv  domain.Inventory
	lock chan struct{}
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		rows:        make(map[int64]*memoryRow),
		orders:      make(map[string]domain.Order),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// PutInventory inserts or replaces a product outside any transaction. An
// existing row keeps its lock and gets its version bumped.
func (m *MemoryStore) PutInventory(inv domain.Inventory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if row, ok := m.rows[inv.ProductNumber]; ok {
		inv.Version = row.inv.Version + 1
		inv.CreatedAt = row.inv.CreatedAt
		inv.UpdatedAt = now
		row.inv = inv
		return
	}

	inv.CreatedAt = now
	inv.UpdatedAt = now
	m.rows[inv.ProductNumber] = &memoryRow{inv: inv, lock: make(chan struct{}, 1)}
}

func (m *MemoryStore) GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[productNumber]
	if !ok {
		return nil, nil
	}
	inv := row.inv
	return &inv, nil
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.InventoryTx) error) error {
	tx := &memoryTx{
		store:  m,
		held:   make(map[int64]*memoryRow),
		writes: make(map[int64]domain.Inventory),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderNumber]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Order, error) {
	m.mu.Lock()
	var orders []domain.Order
	for _, order := range m.orders {
		if !order.OrderedAt.Before(from) && order.OrderedAt.Before(to) {
			orders = append(orders, order)
		}
	}
	m.mu.Unlock()

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].OrderedAt.After(orders[j].OrderedAt)
	})

	if offset >= len(orders) {
		return []domain.Order{}, nil
	}
	orders = orders[offset:]
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MemoryStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MemoryStore) row(productNumber int64) *memoryRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[productNumber]
}

type memoryTx struct {
	store  *MemoryStore
	held   map[int64]*memoryRow
	writes map[int64]domain.Inventory
	orders []domain.Order
}

func (t *memoryTx) GetInventory(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	if inv, ok := t.writes[productNumber]; ok {
		return &inv, nil
	}
	return t.store.GetInventory(ctx, productNumber)
}

func (t *memoryTx) GetInventoryForUpdate(ctx context.Context, productNumber int64) (*domain.Inventory, error) {
	row := t.store.row(productNumber)
	if row == nil {
		return nil, nil
	}
	if err := t.lock(ctx, productNumber, row); err != nil {
		return nil, err
	}
	return t.GetInventory(ctx, productNumber)
}

func (t *memoryTx) UpdateInventory(ctx context.Context, inv domain.Inventory) error {
	row := t.store.row(inv.ProductNumber)
	if row == nil {
		return fmt.Errorf("update inventory %d: %w", inv.ProductNumber, domain.ErrProductNotFound)
	}
	if err := t.lock(ctx, inv.ProductNumber, row); err != nil {
		return err
	}

	current, err := t.GetInventory(ctx, inv.ProductNumber)
	if err != nil {
		return err
	}
	if current.Version != inv.Version {
		return port.ErrOptimisticLock
	}

	inv.Version++
	inv.UpdatedAt = t.store.now()
	t.writes[inv.ProductNumber] = inv
	return nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order domain.Order) error {
	t.orders = append(t.orders, order)
	return nil
}

// lock blocks until the row is free, the lock timeout passes or ctx ends.
func (t *memoryTx) lock(ctx context.Context, productNumber int64, row *memoryRow) error {
	if _, ok := t.held[productNumber]; ok {
		return nil
	}

	timer := time.NewTimer(t.store.lockTimeout)
	defer timer.Stop()

	select {
	case row.lock <- struct{}{}:
		t.held[productNumber] = row
		return nil
	case <-timer.C:
		return port.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memoryTx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, order := range t.orders {
		if _, exists := t.store.orders[order.OrderNumber]; exists {
			return fmt.Errorf("insert order %s: duplicate order number", order.OrderNumber)
		}
	}

	for productNumber, inv := range t.writes {
		t.store.rows[productNumber].inv = inv
	}
	for _, order := range t.orders {
		t.store.orders[order.OrderNumber] = order
	}
	return nil
}

func (t *memoryTx) release() {
	for productNumber, row := range t.held {
		<-row.lock
		delete(t.held, productNumber)
	}
}
