package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

type MySQLIdempotencyRepository struct {
	db *sqlx.DB
}

func NewMySQLIdempotencyRepository(db *sqlx.DB) *MySQLIdempotencyRepository {
	return &MySQLIdempotencyRepository{db: db}
}

func (r *MySQLIdempotencyRepository) FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT key_value, COALESCE(order_number, '') AS order_number, status, created_at, expires_at
		FROM idempotency_keys WHERE key_value = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query idempotency key: %w", err)
	}
	return &rec, nil
}

func (r *MySQLIdempotencyRepository) Insert(ctx context.Context, record domain.IdempotencyRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO idempotency_keys (key_value, order_number, status, created_at, expires_at)
		VALUES (:key_value, NULLIF(:order_number, ''), :status, :created_at, :expires_at)`,
		record,
	)
	if isMySQLError(err, mysqlErrDuplicateEntry) {
		return port.ErrIdempotencyKeyExists
	}
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

func (r *MySQLIdempotencyRepository) Update(ctx context.Context, record domain.IdempotencyRecord, expected domain.IdempotencyStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET order_number = NULLIF(?, ''), status = ?, created_at = ?, expires_at = ?
		WHERE key_value = ? AND status = ?`,
		record.OrderNumber, record.Status, record.CreatedAt, record.ExpiresAt,
		record.Key, expected,
	)
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return port.ErrIdempotencyStale
	}
	return nil
}

func (r *MySQLIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return result.RowsAffected()
}
