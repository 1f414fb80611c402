package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/username/standingbank/backend/src/audit"
	"github.com/username/standingbank/backend/src/config"
	"github.com/username/standingbank/backend/src/database"
	"github.com/username/standingbank/backend/src/handlers"
	"github.com/username/standingbank/backend/src/ledger"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/scheduler"
	"github.com/username/standingbank/backend/src/services"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()
	logger.InitLogger(cfg.LogLevel)

	logger.L.Info("StandingBank backend server starting...")

	logger.L.Info("Initializing database...", "path", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		stdlog.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		stdlog.Fatalf("Failed to run migrations: %v", err)
	}

	recorder := audit.NewRecorder(audit.NewSQLWriter(db), cfg.AuditBufferSize)
	engine := ledger.NewEngine(db, recorder)

	quotes, err := newQuoteProvider(cfg)
	if err != nil {
		stdlog.Fatalf("Failed to load price quotes: %v", err)
	}

	accountService := services.NewAccountService(db, nil)
	orderService := services.NewStandingOrderService(db, recorder, nil)
	transferService := services.NewTransferService(db, engine)
	stockService := services.NewStockService(db, engine, quotes, recorder,
		services.StockFees{Rate: cfg.StockFeeRate, Minimum: cfg.StockMinFee}, nil)

	var schedOpts []scheduler.Option
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			stdlog.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		schedOpts = append(schedOpts, scheduler.WithPassLocker(
			scheduler.NewRedisPassLocker(redisClient, scheduler.DefaultPassLockKey, cfg.SchedulerLockTTL)))
		logger.L.Info("Scheduler pass lock is distributed", "redis", opts.Addr)
	}
	sched := scheduler.New(db, engine, recorder, scheduler.Config{
		Interval:               cfg.SchedulerInterval,
		OrderTimeout:           cfg.SchedulerOrderTimeout,
		Workers:                cfg.SchedulerWorkers,
		BatchSize:              cfg.SchedulerBatchSize,
		MaxConsecutiveFailures: cfg.StandingOrderMaxFailures,
	}, schedOpts...)

	router := handlers.NewRouter(handlers.RouterDeps{
		DB:             db,
		Accounts:       accountService,
		StandingOrders: orderService,
		Transfers:      transferService,
		Stocks:         stockService,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Error("Server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("HTTP server shutdown failed", "error", err)
	}
	<-schedDone
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.L.Error("Audit recorder did not drain", "error", err, "dropped", recorder.Dropped())
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := db.Close(); err != nil {
		logger.L.Error("Error closing database", "error", err)
	}
	logger.L.Info("Server stopped")
}

func newQuoteProvider(cfg *config.AppConfig) (services.QuoteProvider, error) {
	seed := services.DefaultQuotes
	if cfg.QuotesPath != "" {
		loaded, err := services.LoadQuotesFile(cfg.QuotesPath)
		if err != nil {
			return nil, err
		}
		seed = loaded
	}
	static := services.NewStaticQuoteProvider(seed, nil)
	return services.NewCachedQuoteProvider(static, cfg.QuoteCacheTTL, services.BreakerSettings{}), nil
}
