package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
)

type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	// memory or mysql
	StorageDriver string        `mapstructure:"STORAGE_DRIVER"`
	MySQLDSN      string        `mapstructure:"MYSQL_DSN"`
	LockTimeout   time.Duration `mapstructure:"LOCK_TIMEOUT"`

	// memory, mysql or redis
	IdempotencyStore string        `mapstructure:"IDEMPOTENCY_STORE"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB"`
	RedisKeyPrefix   string        `mapstructure:"REDIS_KEY_PREFIX"`
	RedisRetention   time.Duration `mapstructure:"REDIS_RETENTION"`
	IdempotencyTTL   time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	CleanupInterval  time.Duration `mapstructure:"CLEANUP_INTERVAL"`

	OrderStrategy    string        `mapstructure:"ORDER_STRATEGY"`
	MutexLockTimeout time.Duration `mapstructure:"MUTEX_LOCK_TIMEOUT"`

	PessimisticMaxAttempts    int           `mapstructure:"PESSIMISTIC_MAX_ATTEMPTS"`
	PessimisticInitialBackoff time.Duration `mapstructure:"PESSIMISTIC_INITIAL_BACKOFF"`
	PessimisticMaxBackoff     time.Duration `mapstructure:"PESSIMISTIC_MAX_BACKOFF"`
	MutexMaxAttempts          int           `mapstructure:"MUTEX_MAX_ATTEMPTS"`
	MutexInitialBackoff       time.Duration `mapstructure:"MUTEX_INITIAL_BACKOFF"`
	MutexMaxBackoff           time.Duration `mapstructure:"MUTEX_MAX_BACKOFF"`
	OptimisticMaxAttempts     int           `mapstructure:"OPTIMISTIC_MAX_ATTEMPTS"`
	OptimisticInitialBackoff  time.Duration `mapstructure:"OPTIMISTIC_INITIAL_BACKOFF"`
	OptimisticMaxBackoff      time.Duration `mapstructure:"OPTIMISTIC_MAX_BACKOFF"`
	BackoffMultiplier         float64       `mapstructure:"BACKOFF_MULTIPLIER"`

	MaxOrderItems   int `mapstructure:"MAX_ORDER_ITEMS"`
	MaxItemQuantity int `mapstructure:"MAX_ITEM_QUANTITY"`

	FreeShippingThreshold string `mapstructure:"FREE_SHIPPING_THRESHOLD"`
	ShippingFee           string `mapstructure:"SHIPPING_FEE"`

	OTelEndpoint string `mapstructure:"OTEL_ENDPOINT"`

	// Demo product loaded into the store on start when SEED_PRODUCT_NUMBER > 0.
	SeedProductNumber int64  `mapstructure:"SEED_PRODUCT_NUMBER"`
	SeedProductName   string `mapstructure:"SEED_PRODUCT_NAME"`
	SeedProductPrice  string `mapstructure:"SEED_PRODUCT_PRICE"`
	SeedProductStock  int    `mapstructure:"SEED_PRODUCT_STOCK"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "order-engine")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")

	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/orderengine?parseTime=true")
	v.SetDefault("LOCK_TIMEOUT", "5s")

	v.SetDefault("IDEMPOTENCY_STORE", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "idempotency:")
	v.SetDefault("REDIS_RETENTION", "24h")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("CLEANUP_INTERVAL", "1h")

	strategies := service.DefaultStrategyConfig()
	v.SetDefault("ORDER_STRATEGY", string(strategies.Name))
	v.SetDefault("MUTEX_LOCK_TIMEOUT", strategies.MutexLockTimeout.String())
	v.SetDefault("PESSIMISTIC_MAX_ATTEMPTS", strategies.Pessimistic.MaxAttempts)
	v.SetDefault("PESSIMISTIC_INITIAL_BACKOFF", strategies.Pessimistic.InitialBackoff.String())
	v.SetDefault("PESSIMISTIC_MAX_BACKOFF", strategies.Pessimistic.MaxBackoff.String())
	v.SetDefault("MUTEX_MAX_ATTEMPTS", strategies.Mutex.MaxAttempts)
	v.SetDefault("MUTEX_INITIAL_BACKOFF", strategies.Mutex.InitialBackoff.String())
	v.SetDefault("MUTEX_MAX_BACKOFF", strategies.Mutex.MaxBackoff.String())
	v.SetDefault("OPTIMISTIC_MAX_ATTEMPTS", strategies.Optimistic.MaxAttempts)
	v.SetDefault("OPTIMISTIC_INITIAL_BACKOFF", strategies.Optimistic.InitialBackoff.String())
	v.SetDefault("OPTIMISTIC_MAX_BACKOFF", strategies.Optimistic.MaxBackoff.String())
	v.SetDefault("BACKOFF_MULTIPLIER", 2.0)

	limits := service.DefaultOrderLimits()
	v.SetDefault("MAX_ORDER_ITEMS", limits.MaxItems)
	v.SetDefault("MAX_ITEM_QUANTITY", limits.MaxQuantity)

	shipping := domain.DefaultShippingPolicy()
	v.SetDefault("FREE_SHIPPING_THRESHOLD", shipping.FreeShippingThreshold.String())
	v.SetDefault("SHIPPING_FEE", shipping.Fee.String())

	v.SetDefault("OTEL_ENDPOINT", "")

	v.SetDefault("SEED_PRODUCT_NUMBER", 0)
	v.SetDefault("SEED_PRODUCT_NAME", "")
	v.SetDefault("SEED_PRODUCT_PRICE", "0")
	v.SetDefault("SEED_PRODUCT_STOCK", 0)
}

// LoadConfig reads app.env from path when present, then the environment.
func LoadConfig(path string, logger zerolog.Logger) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		logger.Info().Msg("No config file found, using environment variables and defaults.")
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, config.validate()
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.IdempotencyStore {
	case "memory", "mysql", "redis":
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_STORE %q", c.IdempotencyStore)
	}
	if c.IdempotencyStore == "mysql" && c.StorageDriver != "mysql" {
		return errors.New("IDEMPOTENCY_STORE=mysql requires STORAGE_DRIVER=mysql")
	}
	if _, err := service.ParseStrategyName(c.OrderStrategy); err != nil {
		return err
	}
	if c.MaxOrderItems < 1 || c.MaxItemQuantity < 1 {
		return errors.New("MAX_ORDER_ITEMS and MAX_ITEM_QUANTITY must be positive")
	}
	if c.IdempotencyTTL <= 0 || c.CleanupInterval <= 0 {
		return errors.New("IDEMPOTENCY_TTL and CLEANUP_INTERVAL must be positive")
	}
	if _, err := c.ShippingPolicy(); err != nil {
		return err
	}
	return nil
}

func (c Config) ShippingPolicy() (domain.ShippingPolicy, error) {
	threshold, err := domain.ParseMoney(c.FreeShippingThreshold)
	if err != nil {
		return domain.ShippingPolicy{}, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
	}
	fee, err := domain.ParseMoney(c.ShippingFee)
	if err != nil {
		return domain.ShippingPolicy{}, fmt.Errorf("SHIPPING_FEE: %w", err)
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return domain.ShippingPolicy{}, errors.New("shipping amounts must not be negative")
	}
	return domain.ShippingPolicy{FreeShippingThreshold: threshold, Fee: fee}, nil
}

func (c Config) StrategyConfig() service.StrategyConfig {
	policy := func(attempts int, initial, maxBackoff time.Duration) service.RetryPolicy {
		return service.RetryPolicy{
			MaxAttempts:    attempts,
			InitialBackoff: initial,
			MaxBackoff:     maxBackoff,
			Multiplier:     c.BackoffMultiplier,
		}
	}
	name, _ := service.ParseStrategyName(c.OrderStrategy)
	return service.StrategyConfig{
		Name:             name,
		Pessimistic:      policy(c.PessimisticMaxAttempts, c.PessimisticInitialBackoff, c.PessimisticMaxBackoff),
		Mutex:            policy(c.MutexMaxAttempts, c.MutexInitialBackoff, c.MutexMaxBackoff),
		MutexLockTimeout: c.MutexLockTimeout,
		Optimistic:       policy(c.OptimisticMaxAttempts, c.OptimisticInitialBackoff, c.OptimisticMaxBackoff),
	}
}

func (c Config) OrderLimits() service.OrderLimits {
	return service.OrderLimits{MaxItems: c.MaxOrderItems, MaxQuantity: c.MaxItemQuantity}
}

// SeedProduct returns the demo product, or false when none is configured.
func (c Config) SeedProduct() (domain.Inventory, bool, error) {
	if c.SeedProductNumber <= 0 {
		return domain.Inventory{}, false, nil
	}
	price, err := domain.ParseMoney(c.SeedProductPrice)
	if err != nil {
		return domain.Inventory{}, false, fmt.Errorf("SEED_PRODUCT_PRICE: %w", err)
	}
	return domain.Inventory{
		ProductNumber: c.SeedProductNumber,
		Name:          c.SeedProductName,
		Price:         price,
		Stock:         c.SeedProductStock,
	}, true, nil
}
