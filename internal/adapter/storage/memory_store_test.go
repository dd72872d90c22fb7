package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

func seededMemoryStore(lockTimeout time.Duration) *MemoryStore {
	store := NewMemoryStore(lockTimeout)
	store.PutInventory(domain.Inventory{
		ProductNumber: 1,
		Name:          "keyboard",
		Price:         domain.MustParseMoney("35000"),
		Stock:         10,
	})
	return store
}

func TestMemoryStore_PutInventoryBumpsVersion(t *testing.T) {
	store := seededMemoryStore(time.Second)
	ctx := context.Background()

	inv, err := store.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.Version)

	inv.Stock = 3
	store.PutInventory(*inv)

	inv, err = store.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.Stock)
	assert.Equal(t, int64(1), inv.Version)

	missing, err := store.GetInventory(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_CommitAndRollback(t *testing.T) {
	store := seededMemoryStore(time.Second)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		inv, err := tx.GetInventory(ctx, 1)
		require.NoError(t, err)
		inv.Stock = 0
		require.NoError(t, tx.UpdateInventory(ctx, *inv))
		require.NoError(t, tx.CreateOrder(ctx, domain.Order{OrderNumber: "rolled-back"}))

		staged, err := tx.GetInventory(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, staged.Stock, "tx sees its own writes")
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	inv, _ := store.GetInventory(ctx, 1)
	assert.Equal(t, 10, inv.Stock)
	assert.Equal(t, 0, store.OrderCount())

	err = store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		inv, err := tx.GetInventoryForUpdate(ctx, 1)
		require.NoError(t, err)
		inv.Stock = 7
		if err := tx.UpdateInventory(ctx, *inv); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, domain.Order{OrderNumber: "committed"})
	})
	require.NoError(t, err)

	inv, _ = store.GetInventory(ctx, 1)
	assert.Equal(t, 7, inv.Stock)
	assert.Equal(t, int64(1), inv.Version)

	order, err := store.GetOrder(ctx, "committed")
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestMemoryStore_StaleVersionRejected(t *testing.T) {
	store := seededMemoryStore(time.Second)
	ctx := context.Background()

	stale, _ := store.GetInventory(ctx, 1)

	fresh := *stale
	fresh.Stock = 1
	store.PutInventory(fresh)

	err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		stale.Stock = 9
		return tx.UpdateInventory(ctx, *stale)
	})
	assert.ErrorIs(t, err, port.ErrOptimisticLock)

	inv, _ := store.GetInventory(ctx, 1)
	assert.Equal(t, 1, inv.Stock)
}

func TestMemoryStore_RowLockTimeout(t *testing.T) {
	store := seededMemoryStore(20 * time.Millisecond)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			if _, err := tx.GetInventoryForUpdate(ctx, 1); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		_, err := tx.GetInventoryForUpdate(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, port.ErrLockTimeout)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = store.WithinTx(canceled, func(ctx context.Context, tx port.InventoryTx) error {
		_, err := tx.GetInventoryForUpdate(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-holder)

	err = store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
		_, err := tx.GetInventoryForUpdate(ctx, 1)
		return err
	})
	assert.NoError(t, err, "lock is released when the holder ends")
}

func TestMemoryStore_MissingRow(t *testing.T) {
	store := seededMemoryStore(time.Second)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx port.InventoryTx) error {
		inv, err := tx.GetInventoryForUpdate(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, inv)
		return tx.UpdateInventory(ctx, domain.Inventory{ProductNumber: 42})
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestMemoryStore_DuplicateOrderNumber(t *testing.T) {
	store := seededMemoryStore(time.Second)
	ctx := context.Background()
	create := func(ctx context.Context, tx port.InventoryTx) error {
		return tx.CreateOrder(ctx, domain.Order{OrderNumber: "same"})
	}

	require.NoError(t, store.WithinTx(ctx, create))
	assert.Error(t, store.WithinTx(ctx, create))
	assert.Equal(t, 1, store.OrderCount())
}

func TestMemoryStore_ListOrders(t *testing.T) {
	store := seededMemoryStore(time.Second)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, number := range []string{"a", "b", "c", "d"} {
		order := domain.Order{OrderNumber: number, OrderedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx port.InventoryTx) error {
			return tx.CreateOrder(ctx, order)
		}))
	}

	orders, err := store.ListOrders(ctx, base, base.Add(3*time.Hour), 0, 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "c", orders[0].OrderNumber)
	assert.Equal(t, "a", orders[2].OrderNumber)

	orders, err = store.ListOrders(ctx, base, base.Add(24*time.Hour), 2, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "c", orders[0].OrderNumber)
	assert.Equal(t, "b", orders[1].OrderNumber)

	orders, err = store.ListOrders(ctx, base, base.Add(24*time.Hour), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMemoryIdempotencyRepository(t *testing.T) {
	repo := NewMemoryIdempotencyRepository()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.NewIdempotencyRecord("k", now, time.Hour)

	require.NoError(t, repo.Insert(ctx, rec))
	assert.ErrorIs(t, repo.Insert(ctx, rec), port.ErrIdempotencyKeyExists)

	assert.ErrorIs(t, repo.Update(ctx, rec.Complete("o-1"), domain.IdempotencyStatusFailed), port.ErrIdempotencyStale)
	require.NoError(t, repo.Update(ctx, rec.Complete("o-1"), domain.IdempotencyStatusProcessing))

	got, err := repo.FindByKey(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.IdempotencyStatusCompleted, got.Status)
	assert.Equal(t, "o-1", got.OrderNumber)

	deleted, err := repo.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "a record expiring exactly now is kept")

	deleted, err = repo.DeleteExpired(ctx, now.Add(time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err = repo.FindByKey(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}
