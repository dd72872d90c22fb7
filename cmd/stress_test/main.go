package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-engine/internal/adapter/storage"
	"github.com/rl1809/order-engine/internal/core/domain"
	"github.com/rl1809/order-engine/internal/core/service"
)

const (
	productNumber = 1
	initialStock  = 20
	totalRequests = 50
	lockTimeout   = 5 * time.Second
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	failed := false
	for _, name := range []service.StrategyName{
		service.StrategyPessimistic,
		service.StrategyMutex,
		service.StrategyOptimistic,
	} {
		if !run(name) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func run(name service.StrategyName) bool {
	ctx := context.Background()

	store := storage.NewMemoryStore(lockTimeout)
	store.PutInventory(domain.Inventory{
		ProductNumber: productNumber,
		Name:          "stress-item",
		Price:         domain.MustParseMoney("10000"),
		Stock:         initialStock,
	})

	cfg := service.DefaultStrategyConfig()
	cfg.Name = name
	// every buyer loses at most once per competing commit
	cfg.Optimistic.MaxAttempts = totalRequests * 2
	cfg.Pessimistic.MaxAttempts = totalRequests
	cfg.Mutex.MaxAttempts = totalRequests
	strategy, err := service.NewLockingStrategy(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build strategy")
	}

	orderService, err := service.NewOrderService(store, strategy, domain.DefaultShippingPolicy(),
		service.WithOrderLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build order service")
	}

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := orderService.PlaceOrder(ctx, []service.ItemRequest{{ProductNumber: productNumber, Quantity: 1}})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Warn().Err(err).Msg("order failed")
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()
	other := otherCount.Load()

	fmt.Printf("========== STRESS TEST: %s ==========\n", name)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Failures:   %d\n", other)
	fmt.Printf("Orders Stored:    %d\n", store.OrderCount())
	fmt.Printf("Duration:         %v\n", elapsed)

	ok := true
	if success == initialStock && soldOut == totalRequests-initialStock && other == 0 {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d (%d other)\n",
			initialStock, totalRequests-initialStock, success, soldOut, other)
		ok = false
	}

	inv, err := store.GetInventory(ctx, productNumber)
	if err != nil || inv == nil {
		fmt.Printf("FAIL: could not read final stock: %v\n", err)
		return false
	}
	if inv.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", inv.Stock)
		ok = false
	}
	fmt.Println()
	return ok
}
