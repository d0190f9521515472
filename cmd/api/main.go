package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reward-engine/config"
	"reward-engine/internal/adapter/cache"
	httpHandler "reward-engine/internal/adapter/http/handler"
	"reward-engine/internal/adapter/queue/rabbitmq"
	pgStorage "reward-engine/internal/adapter/storage/postgres"
	redisStorage "reward-engine/internal/adapter/storage/redis"
	"reward-engine/internal/core/ports"
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

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Reward Engine API")

	ctx := context.Background()

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

	// Repositories and stores
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	transactor := pgStorage.NewTransactor(pool)
	resultCache := cache.NewTieredResultCache(rdb, localResultTTL)
	statusStore := redisStorage.NewStatusStore(rdb)
	heartbeat := redisStorage.NewHeartbeatStore(rdb, cfg.Queue.HeartbeatTTL)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Core services
	actionSvc := service.NewActionService(balanceRepo, txRepo, transactor, resultCache, cfg.Rewards, log)
	walletSvc := service.NewWalletService(balanceRepo, txRepo, transactor, cfg.Rewards, log)

	healthCheckers := []ports.HealthChecker{
		pgStorage.NewHealthCheck(pool),
		redisStorage.NewHealthCheck(rdb),
	}

	// Dispatch queue. A broker outage at startup degrades to the inline
	// path instead of failing the API.
	var jobQueue ports.JobQueue
	if cfg.Queue.Enabled {
		publisher, err := rabbitmq.NewPublisher(cfg.Queue.URL, cfg.Queue.Name, log)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, actions will run inline")
		} else {
			defer publisher.Close()
			jobQueue = publisher
			healthCheckers = append(healthCheckers, rabbitmq.NewHealthCheck(publisher))
		}
	}

	dispatchSvc := service.NewDispatchService(
		actionSvc, statusStore, jobQueue, heartbeat,
		cfg.Queue, cfg.Rewards.StatusRetention, log,
	)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Dispatcher:     dispatchSvc,
		WalletSvc:      walletSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		JWTSecret:      cfg.JWT.Secret,
		JWTIssuer:      cfg.JWT.Issuer,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
