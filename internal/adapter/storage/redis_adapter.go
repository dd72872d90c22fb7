package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/port"
)

const (
	defaultRedisKeyPrefix = "idempotency:"
	expiryIndexSuffix     = "expiry"
	deleteBatchSize       = 500

	// DefaultRedisRetention keeps a record around after it expires so a late
	// retry is answered with "expired" rather than treated as a new request.
	DefaultRedisRetention = 24 * time.Hour
)

// KEYS[1] record hash, KEYS[2] expiry index
// ARGV: key, status, order_number, created_at, expires_at, expires_at_ms, purge_at_ms
var insertIdempotencyScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end

redis.call('HSET', KEYS[1],
	'key', ARGV[1], 'status', ARGV[2], 'order_number', ARGV[3],
	'created_at', ARGV[4], 'expires_at', ARGV[5])
redis.call('PEXPIREAT', KEYS[1], ARGV[7])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
return 1
`)

// Same layout as the insert script plus ARGV[8], the expected status.
var updateIdempotencyScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if current ~= ARGV[8] then
	return 0
end

redis.call('HSET', KEYS[1],
	'status', ARGV[2], 'order_number', ARGV[3],
	'created_at', ARGV[4], 'expires_at', ARGV[5])
redis.call('PEXPIREAT', KEYS[1], ARGV[7])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
return 1
`)

// KEYS[1] expiry index
// ARGV: now_ms (exclusive), batch size, record key prefix
var deleteExpiredScript = redis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, key in ipairs(keys) do
	redis.call('DEL', ARGV[3] .. key)
	redis.call('ZREM', KEYS[1], key)
end
return #keys
`)

// RedisIdempotencyRepository stores each record as a hash and indexes keys
// by expiry in a sorted set. Every mutation is a single Lua script.
type RedisIdempotencyRepository struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

func NewRedisIdempotencyRepository(client *redis.Client, prefix string, retention time.Duration) *RedisIdempotencyRepository {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisIdempotencyRepository{client: client, prefix: prefix, retention: retention}
}

type redisIdempotencyHash struct {
	Key         string `redis:"key"`
	Status      string `redis:"status"`
	OrderNumber string `redis:"order_number"`
	CreatedAt   int64  `redis:"created_at"`
	ExpiresAt   int64  `redis:"expires_at"`
}

func (r *RedisIdempotencyRepository) recordKey(key string) string {
	return r.prefix + "key:" + key
}

func (r *RedisIdempotencyRepository) indexKey() string {
	return r.prefix + expiryIndexSuffix
}

func (r *RedisIdempotencyRepository) FindByKey(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	res := r.client.HGetAll(ctx, r.recordKey(key))
	values, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall idempotency key: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var h redisIdempotencyHash
	if err := res.Scan(&h); err != nil {
		return nil, fmt.Errorf("scan idempotency key: %w", err)
	}
	return &domain.IdempotencyRecord{
		Key:         h.Key,
		OrderNumber: h.OrderNumber,
		Status:      domain.IdempotencyStatus(h.Status),
		CreatedAt:   time.Unix(0, h.CreatedAt).UTC(),
		ExpiresAt:   time.Unix(0, h.ExpiresAt).UTC(),
	}, nil
}

func (r *RedisIdempotencyRepository) Insert(ctx context.Context, record domain.IdempotencyRecord) error {
	ok, err := insertIdempotencyScript.Run(ctx, r.client, r.keys(record.Key), r.args(record)...).Int()
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	if ok == 0 {
		return port.ErrIdempotencyKeyExists
	}
	return nil
}

func (r *RedisIdempotencyRepository) Update(ctx context.Context, record domain.IdempotencyRecord, expected domain.IdempotencyStatus) error {
	args := append(r.args(record), string(expected))
	ok, err := updateIdempotencyScript.Run(ctx, r.client, r.keys(record.Key), args...).Int()
	if err != nil {
		return fmt.Errorf("update idempotency key: %w", err)
	}
	if ok == 0 {
		return port.ErrIdempotencyStale
	}
	return nil
}

// DeleteExpired removes keys in batches until no expired entry is left.
func (r *RedisIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		n, err := deleteExpiredScript.Run(ctx, r.client, []string{r.indexKey()},
			now.UnixMilli(), deleteBatchSize, r.recordKey("")).Int64()
		if err != nil {
			return total, fmt.Errorf("delete expired idempotency keys: %w", err)
		}
		total += n
		if n < deleteBatchSize {
			return total, nil
		}
	}
}

func (r *RedisIdempotencyRepository) keys(key string) []string {
	return []string{r.recordKey(key), r.indexKey()}
}

func (r *RedisIdempotencyRepository) args(record domain.IdempotencyRecord) []interface{} {
	return []interface{}{
		record.Key,
		string(record.Status),
		record.OrderNumber,
		strconv.FormatInt(record.CreatedAt.UnixNano(), 10),
		strconv.FormatInt(record.ExpiresAt.UnixNano(), 10),
		record.ExpiresAt.UnixMilli(),
		record.ExpiresAt.Add(r.retention).UnixMilli(),
	}
}
