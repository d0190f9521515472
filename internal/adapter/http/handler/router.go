package handler

import (
	"reward-engine/internal/adapter/http/middleware"
	redisStore "reward-engine/internal/adapter/storage/redis"
	"reward-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Dispatcher     ports.ActionDispatcher
	WalletSvc      ports.WalletService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	JWTSecret      string
	JWTIssuer      string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL, Redis and the broker)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.JWTSecret, deps.JWTIssuer, deps.Logger)

	v1 := r.Group("/api/v1")

	actionHandler := NewActionHandler(deps.Dispatcher)
	actions := v1.Group("/actions", jwtAuth)
	{
		actions.POST("/mining-click", rl("actions"), actionHandler.MiningClick)
		actions.POST("/daily-profit", rl("actions"), actionHandler.DailyProfit)
		actions.GET("/status/:key", rl("status"), actionHandler.GetStatus)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
		wallet.POST("/withdrawals", rl("wallet"), walletHandler.SubmitWithdrawal)
	}

	return r
}
