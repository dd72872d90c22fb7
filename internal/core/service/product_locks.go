package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rl1809/order-engine/internal/port"
)

// productLocks hands out one exclusive in-process lock per product number.
// Locks are created on first use and kept for the life of the process. They
// only order goroutines of this process; other processes sharing the store
// are fenced by the revision check on every write.
type productLocks struct {
	locks   sync.Map // int64 -> *semaphore.Weighted
	timeout time.Duration
}

func newProductLocks(timeout time.Duration) *productLocks {
	return &productLocks{timeout: timeout}
}

func (p *productLocks) get(productNumber int64) *semaphore.Weighted {
	if l, ok := p.locks.Load(productNumber); ok {
		return l.(*semaphore.Weighted)
	}
	l, _ := p.locks.LoadOrStore(productNumber, semaphore.NewWeighted(1))
	return l.(*semaphore.Weighted)
}

// acquire waits at most the configured timeout and returns the release func.
func (p *productLocks) acquire(ctx context.Context, productNumber int64) (func(), error) {
	sem := p.get(productNumber)

	lockCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := sem.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("product %d: %w", productNumber, port.ErrLockTimeout)
	}
	return func() { sem.Release(1) }, nil
}
