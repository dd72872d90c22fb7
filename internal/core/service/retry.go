package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

// RetryPolicy bounds how often a placement is re-run after a lock timeout or
// a revision conflict.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	return b
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// isTransient reports whether err came from lock contention rather than
// from the request itself.
func isTransient(err error) bool {
	return errors.Is(err, port.ErrOptimisticLock) || errors.Is(err, port.ErrLockTimeout)
}

// retryTransient re-runs op while it fails with a transient error, up to the
// policy's attempt ceiling. Any other error stops the loop immediately. A
// transient error left after the last attempt is reported as ErrConflict.
func retryTransient[T any](ctx context.Context, policy RetryPolicy, op func() (T, error), onRetry func(err error, next time.Duration)) (T, error) {
	attempts := 0
	notify := func(err error, next time.Duration) {
		if onRetry != nil {
			onRetry(err, next)
		}
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		res, err := op()
		if err != nil && !isTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.attempts()),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil && isTransient(err) {
		var zero T
		return zero, fmt.Errorf("%w after %d attempts: %w", domain.ErrConflict, attempts, err)
	}
	return result, err
}
