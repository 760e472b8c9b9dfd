package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/flash-deal/internal/adapter/handler"
	"github.com/rl1809/flash-deal/internal/adapter/messaging"
	"github.com/rl1809/flash-deal/internal/adapter/storage"
	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/config"
	"github.com/rl1809/flash-deal/internal/core/service"
	"github.com/rl1809/flash-deal/internal/port"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	configLogging(cfg)
	printLogHeader(cfg)
	cfg.PrintConfig()

	db := configDatabase(ctx, cfg)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	rdb, cache := configCache(ctx, cfg)
	publisher := configPublisher(cfg)

	clk := clock.NewSystem()
	retry := service.RetryPolicy{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff}

	log.Info().Msg("creating services...")
	ledger := service.NewLedger(cache, clk)
	inventoryService := service.NewInventoryService(mysqlAdapter, ledger, retry)
	dealService, err := service.NewDealService(mysqlAdapter, mysqlAdapter, ledger, clk, cfg.Deals.CacheSize, retry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create deal service")
	}
	orderService := service.NewOrderService(service.OrderServiceDeps{
		Cache:          cache,
		Orders:         mysqlAdapter,
		Ledger:         ledger,
		Deals:          dealService,
		Inventory:      inventoryService,
		Publisher:      publisher,
		Clock:          clk,
		Retry:          retry,
		IdempotencyTTL: cfg.Orders.IdempotencyTTL,
	}, cfg.Orders.QueueSize)
	sweeper := service.NewSweeper(dealService, ledger, orderService, clk)
	reconciler := service.NewReconciler(dealService, mysqlAdapter, ledger, cfg.Reconcile.Confirmations)

	var workers sync.WaitGroup
	for i := 0; i < cfg.Orders.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			orderService.ProcessOrders(id)
		}(i)
	}
	log.Info().Int("workers", cfg.Orders.Workers).Msg("started order workers")

	bgCtx, stopBackground := context.WithCancel(ctx)
	var background sync.WaitGroup
	runLoop(&background, func() { runStatusLoop(bgCtx, dealService, cfg.Status.Interval) })
	runLoop(&background, func() { sweeper.Run(bgCtx, cfg.Sweeper.Interval) })
	runLoop(&background, func() { reconciler.Run(bgCtx, cfg.Reconcile.Interval) })

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService))

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPC.Port).Msg("failed to listen")
	}
	go func() {
		log.Info().Str("port", cfg.GRPC.Port).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: handler.NewHTTPHandler(orderService, inventoryService, dealService).Router(),
	}
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	stopBackground()
	background.Wait()
	log.Info().Msg("background loops stopped")

	orderService.Close()
	workers.Wait()
	log.Info().Msg("workers stopped")

	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close publisher")
	}
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	log.Info().Msg("connections closed")
}

func runLoop(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func runStatusLoop(ctx context.Context, deals *service.DealService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := deals.RefreshAll(ctx); err != nil {
				log.Error().Err(err).Msg("status refresh failed")
			} else if n > 0 {
				log.Debug().Int("changed", n).Msg("deal statuses refreshed")
			}
		}
	}
}

func configLogging(cfg *config.Config) {
	log.Info().Msg("configuring logging...")

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	if !cfg.Log.Structured {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("loglevel", cfg.Log.Level).Err(err).Msg("defaulting to info")
		level = zerolog.InfoLevel
	}
	log.Info().Str("loglevel", level.String()).Msg("setting log level")
	zerolog.SetGlobalLevel(level)
}

func printLogHeader(cfg *config.Config) {
	if cfg.Log.Structured {
		log.Info().Str("application", config.AppName).
			Str("cache", cfg.Cache.Driver).
			Str("events", cfg.Events.Driver).
			Send()
		return
	}

	f := figure.NewFigure(config.AppName, "", true)
	f.Print()

	log.Info().Msg("=============================================")
	log.Info().Msg(fmt.Sprintf("      HTTP Port: %s", cfg.HTTP.Port))
	log.Info().Msg(fmt.Sprintf("      gRPC Port: %s", cfg.GRPC.Port))
	log.Info().Msg(fmt.Sprintf("          Cache: %s", cfg.Cache.Driver))
	log.Info().Msg(fmt.Sprintf("         Events: %s", cfg.Events.Driver))
	log.Info().Msg("=============================================")
}

func configDatabase(ctx context.Context, cfg *config.Config) *sql.DB {
	log.Info().Msg("connecting to mysql...")

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	for {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		log.Error().Err(err).Msg("failed to ping mysql... retrying")
		time.Sleep(time.Second)
	}
	log.Info().Msg("connected to mysql")

	if cfg.MySQL.Migrate {
		log.Info().Msg("executing migrations")
		if err := storage.RunMigrations(db, cfg.MySQL.Clean); err != nil {
			log.Warn().Err(err).Msg("error executing migrations")
		}
	}
	return db
}

func configCache(ctx context.Context, cfg *config.Config) (*redis.Client, port.CacheRepository) {
	if cfg.Cache.Driver == "memory" {
		log.Warn().Msg("using in-process ledger; holds do not survive a restart")
		return nil, storage.NewMemoryCache(nil)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("connecting to redis...")
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")
	return rdb, storage.NewRedisAdapter(rdb)
}

func configPublisher(cfg *config.Config) port.EventPublisher {
	switch cfg.Events.Driver {
	case "kafka":
		log.Info().Strs("brokers", cfg.Events.Brokers).Msg("publishing events to kafka")
		return messaging.NewKafkaPublisher(cfg.Events.Brokers)
	case "amqp":
		log.Info().Str("exchange", cfg.Events.Exchange).Msg("publishing events to rabbitmq")
		p, err := messaging.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect rabbitmq")
		}
		return p
	default:
		log.Info().Msg("logging events")
		return messaging.NewLogPublisher()
	}
}
