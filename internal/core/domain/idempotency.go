package domain

import (
	"strings"
	"time"
)

const MaxIdempotencyKeyLength = 255

type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "PROCESSING"
	IdempotencyStatusCompleted  IdempotencyStatus = "COMPLETED"
	IdempotencyStatusFailed     IdempotencyStatus = "FAILED"
)

type IdempotencyRecord struct {
	Key         string            `db:"key_value"`
	OrderNumber string            `db:"order_number"`
	Status      IdempotencyStatus `db:"status"`
	CreatedAt   time.Time         `db:"created_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

func NewIdempotencyRecord(key string, now time.Time, ttl time.Duration) IdempotencyRecord {
	return IdempotencyRecord{
		Key:       key,
		Status:    IdempotencyStatusProcessing,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired holds once now is past ExpiresAt, whatever the status.
func (r IdempotencyRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r IdempotencyRecord) IsProcessing() bool {
	return r.Status == IdempotencyStatusProcessing
}

func (r IdempotencyRecord) IsCompleted() bool {
	return r.Status == IdempotencyStatusCompleted
}

func (r IdempotencyRecord) Complete(orderNumber string) IdempotencyRecord {
	r.Status = IdempotencyStatusCompleted
	r.OrderNumber = orderNumber
	return r
}

func (r IdempotencyRecord) Fail() IdempotencyRecord {
	r.Status = IdempotencyStatusFailed
	return r
}

func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" || len(key) > MaxIdempotencyKeyLength {
		return ErrInvalidIdempotencyKey
	}
	return nil
}
