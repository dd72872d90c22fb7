package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
)

var (
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")

	// ErrIdempotencyStale is returned by Update when the stored status is no
	// longer the one the caller expected.
	ErrIdempotencyStale = errors.New("idempotency record changed concurrently")
)

type IdempotencyRepository interface {
	// FindByKey returns nil when the key has never been seen
	FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	// Insert stores a new record, ErrIdempotencyKeyExists if the key is taken
	Insert(ctx context.Context, record domain.IdempotencyRecord) error

	// Update replaces the record only while its stored status equals expected
	Update(ctx context.Context, record domain.IdempotencyRecord, expected domain.IdempotencyStatus) error

	// DeleteExpired removes every record whose expiry is before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
