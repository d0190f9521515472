package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reward-engine/config"
	"reward-engine/internal/adapter/cache"
	"reward-engine/internal/adapter/queue/rabbitmq"
	pgStorage "reward-engine/internal/adapter/storage/postgres"
	redisStorage "reward-engine/internal/adapter/storage/redis"
	"reward-engine/internal/service"
	"reward-engine/pkg/logger"
)

const localResultTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Int("workers", cfg.Queue.Workers).Msg("Starting Reward Engine worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	balanceRepo := pgStorage.NewBalanceRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	transactor := pgStorage.NewTransactor(pool)
	resultCache := cache.NewTieredResultCache(rdb, localResultTTL)
	statusStore := redisStorage.NewStatusStore(rdb)
	heartbeat := redisStorage.NewHeartbeatStore(rdb, cfg.Queue.HeartbeatTTL)

	actionSvc := service.NewActionService(balanceRepo, txRepo, transactor, resultCache, cfg.Rewards, log)
	worker := service.NewWorker(actionSvc, statusStore, heartbeat, cfg.Rewards.StatusRetention, log)

	// The heartbeat is shared by the pool: one live consumer keeps the API
	// on the async path.
	go worker.RunHeartbeat(ctx, cfg.Queue.HeartbeatInterval)

	var wg sync.WaitGroup
	consumers := make([]*rabbitmq.Consumer, 0, cfg.Queue.Workers)
	for i := 0; i < cfg.Queue.Workers; i++ {
		consumer, err := rabbitmq.NewConsumer(cfg.Queue.URL, cfg.Queue.Name, 1, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := consumer.Start(ctx, worker.Handle); err != nil {
				log.Error().Err(err).Int("consumer", id).Msg("consumer stopped")
			}
		}(i)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down workers...")

	cancel()
	for _, c := range consumers {
		c.Close()
	}
	wg.Wait()
	log.Info().Msg("Workers exited")
}
