package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

type MemoryIdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

func NewMemoryIdempotencyRepository() *MemoryIdempotencyRepository {
	return &MemoryIdempotencyRepository{records: make(map[string]domain.IdempotencyRecord)}
}

func (r *MemoryIdempotencyRepository) FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryIdempotencyRepository) Insert(ctx context.Context, record domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.Key]; ok {
		return port.ErrIdempotencyKeyExists
	}
	r.records[record.Key] = record
	return nil
}

func (r *MemoryIdempotencyRepository) Update(ctx context.Context, record domain.IdempotencyRecord, expected domain.IdempotencyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[record.Key]
	if !ok || current.Status != expected {
		return port.ErrIdempotencyStale
	}
	r.records[record.Key] = record
	return nil
}

func (r *MemoryIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, rec := range r.records {
		if rec.ExpiresAt.Before(now) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}
