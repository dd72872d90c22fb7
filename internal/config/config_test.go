package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-engine/internal/core/service"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "order-engine", cfg.AppName)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)

	strategies := cfg.StrategyConfig()
	assert.Equal(t, service.StrategyOptimistic, strategies.Name)
	assert.Equal(t, 5, strategies.Optimistic.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, strategies.Optimistic.InitialBackoff)
	assert.Equal(t, 3, strategies.Pessimistic.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, strategies.Mutex.InitialBackoff)
	assert.Equal(t, 2.0, strategies.Mutex.Multiplier)

	assert.Equal(t, service.DefaultOrderLimits(), cfg.OrderLimits())

	policy, err := cfg.ShippingPolicy()
	require.NoError(t, err)
	assert.Equal(t, "50000.00", policy.FreeShippingThreshold.String())
	assert.Equal(t, "2500.00", policy.Fee.String())

	_, ok, err := cfg.SeedProduct()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ORDER_STRATEGY", "mutex")
	t.Setenv("MUTEX_LOCK_TIMEOUT", "250ms")
	t.Setenv("SHIPPING_FEE", "3000")
	t.Setenv("MAX_ORDER_ITEMS", "3")

	cfg, err := LoadConfig(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	strategies := cfg.StrategyConfig()
	assert.Equal(t, service.StrategyMutex, strategies.Name)
	assert.Equal(t, 250*time.Millisecond, strategies.MutexLockTimeout)
	assert.Equal(t, 3, cfg.OrderLimits().MaxItems)

	policy, err := cfg.ShippingPolicy()
	require.NoError(t, err)
	assert.Equal(t, "3000.00", policy.Fee.String())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := "STORAGE_DRIVER=mysql\nIDEMPOTENCY_STORE=redis\nSEED_PRODUCT_NUMBER=7\nSEED_PRODUCT_NAME=lamp\nSEED_PRODUCT_PRICE=1999.99\nSEED_PRODUCT_STOCK=40\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.StorageDriver)
	assert.Equal(t, "redis", cfg.IdempotencyStore)

	seed, ok, err := cfg.SeedProduct()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), seed.ProductNumber)
	assert.Equal(t, "1999.99", seed.Price.String())
	assert.Equal(t, 40, seed.Stock)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"ORDER_STRATEGY":    "lockfree",
		"STORAGE_DRIVER":    "postgres",
		"IDEMPOTENCY_STORE": "mysql",
		"SHIPPING_FEE":      "abc",
		"MAX_ORDER_ITEMS":   "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig(t.TempDir(), zerolog.Nop())
			assert.Error(t, err)
		})
	}
}
