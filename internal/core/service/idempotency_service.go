package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

const DefaultIdempotencyTTL = 24 * time.Hour

// OrderFunc is the operation guarded by an idempotency key.
type OrderFunc func(ctx context.Context) (*domain.Order, error)

type IdempotencyService struct {
	repo   port.IdempotencyRepository
	orders port.OrderRepository
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

type IdempotencyOption func(*IdempotencyService)

func WithTTL(ttl time.Duration) IdempotencyOption {
	return func(s *IdempotencyService) { s.ttl = ttl }
}

func WithIdempotencyClock(now func() time.Time) IdempotencyOption {
	return func(s *IdempotencyService) { s.now = now }
}

func WithIdempotencyLogger(logger zerolog.Logger) IdempotencyOption {
	return func(s *IdempotencyService) { s.logger = logger }
}

func NewIdempotencyService(repo port.IdempotencyRepository, orders port.OrderRepository, opts ...IdempotencyOption) *IdempotencyService {
	s := &IdempotencyService{
		repo:   repo,
		orders: orders,
		ttl:    DefaultIdempotencyTTL,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs op at most once per key while the key is live. A completed key
// returns the order it produced without running op again. A failed key may
// be retried.
func (s *IdempotencyService) Execute(ctx context.Context, key string, op OrderFunc) (*domain.Order, error) {
	if err := domain.ValidateIdempotencyKey(key); err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("idempotency_key", key).Logger()

	existing, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find idempotency key: %w", err)
	}

	now := s.now()
	record := domain.NewIdempotencyRecord(key, now, s.ttl)

	if existing != nil {
		// expiry is checked before status
		switch {
		case existing.IsExpired(now):
			logger.Warn().Time("expires_at", existing.ExpiresAt).Msg("idempotency key expired")
			return nil, fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyExpired, key)
		case existing.IsProcessing():
			return nil, fmt.Errorf("%w: key %s is being processed", domain.ErrDuplicateRequest, key)
		case existing.IsCompleted() && existing.OrderNumber != "":
			logger.Info().Str("order_number", existing.OrderNumber).Msg("replaying completed request")
			return s.replay(ctx, *existing)
		}

		if err := s.repo.Update(ctx, record, existing.Status); err != nil {
			return nil, claimError(key, err)
		}
	} else if err := s.repo.Insert(ctx, record); err != nil {
		return nil, claimError(key, err)
	}

	order, err := op(ctx)

	// the outcome is recorded even when the caller has gone away
	markCtx := context.WithoutCancel(ctx)
	if err != nil {
		if markErr := s.repo.Update(markCtx, record.Fail(), domain.IdempotencyStatusProcessing); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark idempotency key failed")
		}
		return nil, err
	}

	if markErr := s.repo.Update(markCtx, record.Complete(order.OrderNumber), domain.IdempotencyStatusProcessing); markErr != nil {
		logger.Error().Err(markErr).Str("order_number", order.OrderNumber).Msg("failed to mark idempotency key completed")
	}
	return order, nil
}

func (s *IdempotencyService) replay(ctx context.Context, record domain.IdempotencyRecord) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, record.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", record.OrderNumber, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s (idempotency key %s)", domain.ErrOrderNotFound, record.OrderNumber, record.Key)
	}
	return order, nil
}

// CleanupExpired deletes every record whose expiry has passed and returns how
// many were removed.
func (s *IdempotencyService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return deleted, nil
}

func claimError(key string, err error) error {
	if errors.Is(err, port.ErrIdempotencyKeyExists) || errors.Is(err, port.ErrIdempotencyStale) {
		return fmt.Errorf("%w: key %s was claimed concurrently", domain.ErrDuplicateRequest, key)
	}
	return fmt.Errorf("claim idempotency key: %w", err)
}
