package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/adapter/storage"
	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	productID     = "flash-deal-item"
	initialStock  = 20
	totalRequests = 50
	holdTimeout   = 10 * time.Minute
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	rdb.Del(ctx, service.StockKey(productID), service.ReservationKey(productID), service.ReservationKey(productID)+":qty")

	ledger := service.NewLedger(storage.NewRedisAdapter(rdb), clock.NewSystem())
	if err := ledger.Seed(ctx, productID, initialStock, time.Hour); err != nil {
		log.Fatal().Err(err).Msg("failed to seed ledger")
	}

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := ledger.TryReserve(ctx, productID, uuid.NewString(), 1, holdTimeout)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Error().Err(err).Msg("reserve failed")
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Reserved:         %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d holds admitted, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		failed = true
		fmt.Printf("FAIL: expected %d/%d, got %d/%d\n", initialStock, totalRequests-initialStock, success, soldOut)
	}

	snap, err := ledger.Snapshot(ctx, productID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read ledger")
	}
	fmt.Printf("Remaining:        %d\n", snap.Remaining)
	fmt.Printf("Outstanding:      %d\n", snap.Outstanding)

	if snap.Remaining == 0 && snap.Outstanding == initialStock {
		fmt.Println("PASS: stock depleted and every unit held")
	} else {
		failed = true
		fmt.Printf("FAIL: expected remaining 0 and outstanding %d\n", initialStock)
	}

	if failed {
		os.Exit(1)
	}
}
