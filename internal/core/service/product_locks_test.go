package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/port"
)

func TestProductLocks_TimeoutAndRelease(t *testing.T) {
	locks := newProductLocks(10 * time.Millisecond)

	unlock, err := locks.acquire(context.Background(), 7)
	require.NoError(t, err)

	_, err = locks.acquire(context.Background(), 7)
	assert.ErrorIs(t, err, port.ErrLockTimeout)

	other, err := locks.acquire(context.Background(), 8)
	require.NoError(t, err, "locks are per product")
	other()

	unlock()
	again, err := locks.acquire(context.Background(), 7)
	require.NoError(t, err)
	again()
}

func TestProductLocks_CanceledContext(t *testing.T) {
	locks := newProductLocks(time.Second)
	unlock, err := locks.acquire(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locks.acquire(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, port.ErrLockTimeout)
}
