package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepTimeout = 30 * time.Second

// Sweeper periodically removes expired idempotency keys.
type Sweeper struct {
	idempotency *IdempotencyService
	interval    time.Duration
	logger      zerolog.Logger
}

func NewSweeper(idempotency *IdempotencyService, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{idempotency: idempotency, interval: interval, logger: logger}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	deleted, err := s.idempotency.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("idempotency cleanup failed, retrying next tick")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("expired idempotency keys removed")
	}
}
