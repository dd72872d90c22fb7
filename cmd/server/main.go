package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/order-engine/internal/adapter/handler"
	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/config"
	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
	"github.com/rl1809/order-engine/internal/port"
	"github.com/rl1809/order-engine/internal/telemetry"
)

// orderStore is what the server needs from a storage driver.
type orderStore interface {
	port.InventoryStore
	port.OrderRepository
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(".", log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg.LogLevel)
	log.Info().Str("appName", cfg.AppName).Str("strategy", cfg.OrderStrategy).Msg("Application starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetry.Setup(ctx, cfg.AppName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	var db *sqlx.DB
	if cfg.StorageDriver == "mysql" {
		db, err = storage.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MySQL")
		}
		if err := storage.ApplySchema(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		log.Info().Msg("connected to mysql")
	}

	store, err := newOrderStore(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order store")
	}

	var rdb *redis.Client
	if cfg.IdempotencyStore == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("connected to redis")
	}
	idempotencyRepo := newIdempotencyRepository(cfg, db, rdb)

	shipping, err := cfg.ShippingPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid shipping policy")
	}
	strategy, err := service.NewLockingStrategy(cfg.StrategyConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid order strategy")
	}
	orderService, err := service.NewOrderService(store, strategy, shipping,
		service.WithOrderLogger(log.Logger),
		service.WithLimits(cfg.OrderLimits()),
		service.WithTracerProvider(providers.TracerProvider),
		service.WithMeterProvider(providers.MeterProvider),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order service")
	}
	idempotencyService := service.NewIdempotencyService(idempotencyRepo, store,
		service.WithTTL(cfg.IdempotencyTTL),
		service.WithIdempotencyLogger(log.Logger),
	)
	checkout := service.NewCheckoutService(orderService, idempotencyService, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.NewSweeper(idempotencyService, cfg.CleanupInterval, log.Logger).Run(ctx)
	}()

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(log.Logger)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(checkout))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("Failed to listen")
	}
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(checkout, log.Logger), cfg.AppName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Application shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	cancel()
	wg.Wait()
	log.Info().Msg("sweeper stopped")

	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	log.Info().Msg("connections closed")
}

func newOrderStore(ctx context.Context, cfg config.Config, db *sqlx.DB) (orderStore, error) {
	seed, hasSeed, err := cfg.SeedProduct()
	if err != nil {
		return nil, err
	}

	if db != nil {
		store := storage.NewMySQLAdapter(db, cfg.LockTimeout)
		if hasSeed {
			if err := store.PutInventory(ctx, seed); err != nil {
				return nil, err
			}
			logSeed(seed)
		}
		return store, nil
	}

	store := storage.NewMemoryStore(cfg.LockTimeout)
	if hasSeed {
		store.PutInventory(seed)
		logSeed(seed)
	}
	return store, nil
}

func newIdempotencyRepository(cfg config.Config, db *sqlx.DB, rdb *redis.Client) port.IdempotencyRepository {
	switch cfg.IdempotencyStore {
	case "mysql":
		return storage.NewMySQLIdempotencyRepository(db)
	case "redis":
		return storage.NewRedisIdempotencyRepository(rdb, cfg.RedisKeyPrefix, cfg.RedisRetention)
	default:
		return storage.NewMemoryIdempotencyRepository()
	}
}

func logSeed(inv domain.Inventory) {
	log.Info().
		Int64("product_number", inv.ProductNumber).
		Str("name", inv.Name).
		Str("price", inv.Price.String()).
		Int("stock", inv.Stock).
		Msg("seeded product")
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
